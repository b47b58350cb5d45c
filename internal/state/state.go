// Package state is the in-memory control plane of the simulated node.
//
// An Engine exclusively owns terms agreement, chain bindings, the
// identity registry and per-port connection records.  Every operation
// takes the engine's single reader/writer lock, does pure in-memory
// work and releases it before returning, so lock hold time never
// depends on I/O.  Readers (ConfigSnapshot, ConnectionStatus,
// IdentityExists) may run concurrently; writers are totally ordered and
// the last writer wins.
package state

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Fixed chain bindings.  They are read-only after construction.
const (
	DefaultChainID = 137

	Chain1ID     = 1
	Chain1Hermes = "0xa62a2a75949d25e17c6f08a7818e7be97c18a8d2"
	Chain2ID     = 137
	Chain2Hermes = "0x80ed28d84792d8b153bf2f25f0c4b7a1381de4ab"
)

// Status is the per-port connection state.
type Status int

const (
	NotConnected Status = iota
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "Connected"
	}
	return "NotConnected"
}

// Terms is the terms-of-use agreement.
type Terms struct {
	ConsumerAgreed bool
	ProviderAgreed bool
	Version        string
}

// ChainBinding associates a chain id with its Hermes contract address.
type ChainBinding struct {
	ChainID int64
	Hermes  string
}

// ConfigSnapshot is a consistent read of terms and chain bindings.
type ConfigSnapshot struct {
	Terms   Terms
	ChainID int64 // active chain
	Chain1  ChainBinding
	Chain2  ChainBinding
}

// ConnectionSnapshot describes the connection on one port.  All peer
// fields are empty when Status is NotConnected.
type ConnectionSnapshot struct {
	Status     Status
	ConsumerID string
	ProviderID string
	HermesID   string
	SessionID  string
}

type connectionRecord struct {
	consumerID string
	providerID string
	hermesID   string
	sessionID  string
}

// Engine is safe for concurrent use.  The zero value is not usable;
// construct with [New].
type Engine struct {
	mu sync.RWMutex

	terms   Terms
	chainID int64
	chain1  ChainBinding
	chain2  ChainBinding

	// identities keeps import order; members is the membership index.
	identities []string
	members    map[string]struct{}
	current    string // "" = unset, otherwise always a member

	connections map[int]connectionRecord

	newSessionID func() string
}

// New creates an engine with the given terms version and the fixed
// chain bindings.
func New(termsVersion string) *Engine {
	return &Engine{
		terms:        Terms{Version: termsVersion},
		chainID:      DefaultChainID,
		chain1:       ChainBinding{ChainID: Chain1ID, Hermes: Chain1Hermes},
		chain2:       ChainBinding{ChainID: Chain2ID, Hermes: Chain2Hermes},
		members:      make(map[string]struct{}),
		connections:  make(map[int]connectionRecord),
		newSessionID: uuid.NewString,
	}
}

// ── Config & terms ───────────────────────────────────────────────────

// ConfigSnapshot returns the current terms and chain bindings.
func (e *Engine) ConfigSnapshot() ConfigSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return ConfigSnapshot{
		Terms:   e.terms,
		ChainID: e.chainID,
		Chain1:  e.chain1,
		Chain2:  e.chain2,
	}
}

// UpdateTerms overwrites each non-nil field; nil fields keep their
// previous value.  The version is not validated.
func (e *Engine) UpdateTerms(consumer, provider *bool, version *string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if consumer != nil {
		e.terms.ConsumerAgreed = *consumer
	}
	if provider != nil {
		e.terms.ProviderAgreed = *provider
	}
	if version != nil {
		e.terms.Version = *version
	}
}

// HermesID returns the Hermes address bound to the active chain.
func (e *Engine) HermesID() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch e.chainID {
	case e.chain1.ChainID:
		return e.chain1.Hermes, nil
	case e.chain2.ChainID:
		return e.chain2.Hermes, nil
	}
	return "", fmt.Errorf("no hermes specified for chain %d", e.chainID)
}

// ── Identities ───────────────────────────────────────────────────────

// RegisterIdentity adds address to the registry.  Registering a known
// address is a no-op.  Addresses are opaque and not validated.
func (e *Engine) RegisterIdentity(address string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.members[address]; ok {
		return
	}
	e.members[address] = struct{}{}
	e.identities = append(e.identities, address)
}

// SelectCurrentIdentity resolves the current identity:
//
//  1. a non-empty requested address that is registered becomes current;
//  2. otherwise an already-set current identity is kept;
//  3. otherwise the first imported identity becomes current.
//
// It returns false only when the registry is empty.
func (e *Engine) SelectCurrentIdentity(requested string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if requested != "" {
		if _, ok := e.members[requested]; ok {
			e.current = requested
			return requested, true
		}
	}
	if e.current != "" {
		return e.current, true
	}
	if len(e.identities) == 0 {
		return "", false
	}
	e.current = e.identities[0]
	return e.current, true
}

// IdentityExists reports whether address has been registered.
func (e *Engine) IdentityExists(address string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.members[address]
	return ok
}

// Identities returns the registered addresses in import order.
func (e *Engine) Identities() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.identities))
	copy(out, e.identities)
	return out
}

// ── Connections ──────────────────────────────────────────────────────

// ConnectionStatus reports the connection recorded for port.
func (e *Engine) ConnectionStatus(port int) ConnectionSnapshot {
	e.mu.RLock()
	rec, ok := e.connections[port]
	e.mu.RUnlock()

	if !ok {
		return ConnectionSnapshot{Status: NotConnected}
	}
	return rec.snapshot()
}

// CreateConnection records a connection on port with a fresh session
// id, replacing any record already there.  There is deliberately no
// double-connect guard at this layer.  serviceType is informational
// and not stored.
func (e *Engine) CreateConnection(port int, consumerID, providerID, hermesID, serviceType string) ConnectionSnapshot {
	_ = serviceType

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := connectionRecord{
		consumerID: consumerID,
		providerID: providerID,
		hermesID:   hermesID,
		sessionID:  e.newSessionID(),
	}
	e.connections[port] = rec
	return rec.snapshot()
}

func (r connectionRecord) snapshot() ConnectionSnapshot {
	return ConnectionSnapshot{
		Status:     Connected,
		ConsumerID: r.consumerID,
		ProviderID: r.providerID,
		HermesID:   r.hermesID,
		SessionID:  r.sessionID,
	}
}
