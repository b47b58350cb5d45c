// Package keystore handles Ethereum-style keystore blobs as they reach
// the node: extracting the identity address, and reassembling a
// keystore that a shell mangled through brace expansion.
package keystore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	gmerr "gomyst/internal/errors"
)

// Address returns the "address" field of a keystore JSON document.
func Address(data []byte) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", gmerr.Invalid("invalid keystore JSON", err)
	}
	addr, ok := doc["address"].(string)
	if !ok {
		return "", gmerr.Invalid("identity keystore does not contain address", nil)
	}
	return addr, nil
}

// Resolve turns the key arguments of `identities import` into keystore
// JSON.  A single argument is taken as-is; several arguments are the
// pieces of a brace-expanded object and are merged back together.  If
// the result names an existing file, the file's contents are used
// instead, with \" unescaped.
func Resolve(parts []string) (string, error) {
	if len(parts) == 0 {
		return "", gmerr.Invalid("missing identity key argument", nil)
	}

	combined := parts[0]
	if len(parts) > 1 {
		var err error
		if combined, err = Rebuild(parts); err != nil {
			return "", err
		}
	}

	if _, err := os.Stat(combined); err == nil {
		data, err := os.ReadFile(combined)
		if err != nil {
			return "", fmt.Errorf("reading identity file at %s: %w", combined, err)
		}
		return strings.ReplaceAll(string(data), `\"`, `"`), nil
	}
	return combined, nil
}

// Rebuild merges segments of the form "a":"b":<json value> into one
// JSON object.  Later values for the same path replace earlier ones
// unless both are objects, in which case they are merged.
func Rebuild(parts []string) (string, error) {
	root := map[string]any{}

	for _, part := range parts {
		cleaned := strings.TrimSpace(strings.ReplaceAll(part, `\"`, `"`))
		if cleaned == "" {
			continue
		}
		path, value, err := parseSegment(cleaned)
		if err != nil {
			return "", gmerr.Invalid(fmt.Sprintf("failed to decode segment '%s'", part), err)
		}
		mergePath(root, path, value)
	}

	out, err := json.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ── segment parsing ──────────────────────────────────────────────────

func trimBraces(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "{") {
		s = strings.TrimLeft(s[1:], " \t\r\n")
	}
	for strings.HasSuffix(s, "}") {
		s = strings.TrimRight(s[:len(s)-1], " \t\r\n")
	}
	return s
}

func parseSegment(segment string) ([]string, any, error) {
	trimmed := trimBraces(segment)
	if trimmed == "" {
		return nil, nil, gmerr.New("segment missing key")
	}

	pathPart, value, err := splitSegment(trimmed)
	if err != nil {
		return nil, nil, err
	}

	var keys []string
	rest := strings.TrimSpace(pathPart)
	for rest != "" {
		rest = trimBraces(rest)
		if rest == "" {
			break
		}
		key, after, err := parseJSONString(rest)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing key component: %w", err)
		}
		keys = append(keys, key)
		rest = strings.TrimLeft(after, " \t\r\n")

		if strings.HasPrefix(rest, ":") {
			rest = strings.TrimLeft(rest[1:], " \t\r\n")
			continue
		}
		if rest != "" {
			return nil, nil, gmerr.New("unexpected characters after key component")
		}
	}
	if len(keys) == 0 {
		return nil, nil, gmerr.New("segment missing key path")
	}
	return keys, value, nil
}

// splitSegment finds the earliest position from which the remainder of
// the segment is one complete JSON value.
func splitSegment(segment string) (string, any, error) {
	for i, ch := range segment {
		if !startsValue(ch) {
			continue
		}
		tail := []byte(segment[i:])
		if !json.Valid(tail) {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(tail))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			continue
		}
		path := strings.TrimRight(segment[:i], " \t\r\n")
		path = strings.TrimRight(strings.TrimRight(path, ":"), " \t\r\n")
		return path, v, nil
	}
	return "", nil, gmerr.New("failed to split segment into path and value")
}

func startsValue(ch rune) bool {
	switch {
	case ch == '"', ch == '{', ch == '[', ch == 't', ch == 'f', ch == 'n', ch == '-':
		return true
	case ch >= '0' && ch <= '9':
		return true
	}
	return false
}

// parseJSONString reads one quoted JSON string from the front of s.
func parseJSONString(s string) (string, string, error) {
	if !strings.HasPrefix(s, `"`) {
		return "", "", gmerr.New("expected string literal")
	}

	end := -1
	escaped := false
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && !escaped:
			end = i + 1
		case c == '\\' && !escaped:
			escaped = true
			continue
		}
		if end > 0 {
			break
		}
		escaped = false
	}
	if end < 0 {
		return "", "", gmerr.New("unterminated string literal")
	}

	var out string
	if err := json.Unmarshal([]byte(s[:end]), &out); err != nil {
		return "", "", fmt.Errorf("decoding string literal: %w", err)
	}
	return out, s[end:], nil
}

// ── merging ──────────────────────────────────────────────────────────

func mergePath(target map[string]any, path []string, value any) {
	first, rest := path[0], path[1:]
	if len(rest) == 0 {
		mergeEntry(target, first, value)
		return
	}

	child, ok := target[first].(map[string]any)
	if !ok {
		child = map[string]any{}
		target[first] = child
	}
	mergePath(child, rest, value)
}

func mergeEntry(target map[string]any, key string, value any) {
	existing, ok := target[key]
	if !ok {
		target[key] = value
		return
	}
	oldMap, oldIsMap := existing.(map[string]any)
	newMap, newIsMap := value.(map[string]any)
	if oldIsMap && newIsMap {
		for k, v := range newMap {
			mergeEntry(oldMap, k, v)
		}
		return
	}
	target[key] = value
}
