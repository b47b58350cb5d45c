package client

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ConfigView is a read-only view of the node's /config document with
// dotted, case-insensitive key lookup ("terms.consumer-agreed").
type ConfigView struct {
	data map[string]any
}

// NewConfigView wraps a decoded /config "data" object.
func NewConfigView(data map[string]any) *ConfigView {
	if data == nil {
		data = map[string]any{}
	}
	return &ConfigView{data: data}
}

// Get walks the dotted key and returns the value found there.
func (v *ConfigView) Get(key string) (any, bool) {
	var cur any = v.data
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Bool returns the boolean at key, or false.
func (v *ConfigView) Bool(key string) bool {
	val, _ := v.Get(key)
	b, _ := val.(bool)
	return b
}

// String returns the string at key.
func (v *ConfigView) String(key string) (string, bool) {
	val, _ := v.Get(key)
	s, ok := val.(string)
	return s, ok
}

// Int64 returns the integer at key.  Non-integral numbers do not count.
func (v *ConfigView) Int64(key string) (int64, bool) {
	val, _ := v.Get(key)
	switch n := val.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// HermesID picks the Hermes address of the chain whose id matches the
// active "chain-id", checking chain 1 before chain 2.
func (v *ConfigView) HermesID() (string, error) {
	chainID, ok := v.Int64("chain-id")
	if !ok {
		return "", fmt.Errorf("missing chain id")
	}
	for _, n := range []string{"1", "2"} {
		id, ok := v.Int64("chains." + n + ".chainid")
		if !ok {
			return "", fmt.Errorf("missing chain %s id", n)
		}
		if id != chainID {
			continue
		}
		hermes, ok := v.String("chains." + n + ".hermes")
		if !ok {
			return "", fmt.Errorf("missing chain %s hermes id", n)
		}
		return hermes, nil
	}
	return "", fmt.Errorf("no hermes specified for chain %d", chainID)
}
