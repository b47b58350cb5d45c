package api

import "gomyst/internal/state"

// Fixed process metadata reported by /healthcheck.
const (
	Version     = "0.0.1"
	BuildCommit = "<unknown>"
	BuildBranch = "<unknown>"
	BuildNumber = "dev-build"

	// RegistrationStatus is reported for every known identity.
	RegistrationStatus = "Registered"
)

// ── Responses ────────────────────────────────────────────────────────

type HealthcheckResponse struct {
	Uptime    string    `json:"uptime"`
	Process   int       `json:"process"`
	Version   string    `json:"version"`
	BuildInfo BuildInfo `json:"build_info"`
}

type BuildInfo struct {
	Commit      string `json:"commit"`
	Branch      string `json:"branch"`
	BuildNumber string `json:"build_number"`
}

type ConfigResponse struct {
	Data ConfigData `json:"data"`
}

type ConfigData struct {
	ChainID int64                `json:"chain-id"`
	Terms   TermsData            `json:"terms"`
	Chains  map[string]ChainData `json:"chains"`
}

type TermsData struct {
	ConsumerAgreed bool   `json:"consumer-agreed"`
	ProviderAgreed bool   `json:"provider-agreed"`
	Version        string `json:"version"`
}

type ChainData struct {
	ChainID int64  `json:"chainid"`
	Hermes  string `json:"hermes"`
}

type IdentityRef struct {
	ID string `json:"id"`
}

type IdentityInfo struct {
	ID                 string `json:"id"`
	RegistrationStatus string `json:"registration_status"`
}

type ConnectionInfo struct {
	Status     string `json:"status"`
	ConsumerID string `json:"consumer_id,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	HermesID   string `json:"hermes_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// ── Requests ─────────────────────────────────────────────────────────

type TermsRequest struct {
	AgreedConsumer *bool   `json:"agreed_consumer,omitempty"`
	AgreedProvider *bool   `json:"agreed_provider,omitempty"`
	AgreedVersion  *string `json:"agreed_version,omitempty"`
}

type IdentityImportRequest struct {
	Data              string `json:"data"`
	CurrentPassphrase string `json:"current_passphrase,omitempty"`
	SetDefault        bool   `json:"set_default,omitempty"`
}

type IdentityCurrentRequest struct {
	ID         string `json:"id"`
	Passphrase string `json:"passphrase"`
}

type ConnectionCreateRequest struct {
	ConsumerID     string           `json:"consumer_id"`
	ProviderID     *string          `json:"provider_id"`
	HermesID       string           `json:"hermes_id"`
	ServiceType    string           `json:"service_type"`
	Filter         ConnectionFilter `json:"filter"`
	ConnectOptions *ConnectOptions  `json:"connect_options,omitempty"`
}

type ConnectionFilter struct {
	Providers []string `json:"providers"`
}

type ConnectOptions struct {
	KillSwitch bool   `json:"kill_switch"`
	DNS        string `json:"dns,omitempty"`
	ProxyPort  int    `json:"proxy_port"`
}

// ── Conversions ──────────────────────────────────────────────────────

func configResponse(s state.ConfigSnapshot) ConfigResponse {
	return ConfigResponse{Data: ConfigData{
		ChainID: s.ChainID,
		Terms: TermsData{
			ConsumerAgreed: s.Terms.ConsumerAgreed,
			ProviderAgreed: s.Terms.ProviderAgreed,
			Version:        s.Terms.Version,
		},
		Chains: map[string]ChainData{
			"1": {ChainID: s.Chain1.ChainID, Hermes: s.Chain1.Hermes},
			"2": {ChainID: s.Chain2.ChainID, Hermes: s.Chain2.Hermes},
		},
	}}
}

func connectionInfo(s state.ConnectionSnapshot) ConnectionInfo {
	return ConnectionInfo{
		Status:     s.Status.String(),
		ConsumerID: s.ConsumerID,
		ProviderID: s.ProviderID,
		HermesID:   s.HermesID,
		SessionID:  s.SessionID,
	}
}

// provider picks the explicit provider id, else the first non-empty
// filter entry.
func (r *ConnectionCreateRequest) provider() string {
	if r.ProviderID != nil && *r.ProviderID != "" {
		return *r.ProviderID
	}
	for _, p := range r.Filter.Providers {
		if p != "" {
			return p
		}
	}
	return ""
}

func (r *ConnectionCreateRequest) proxyPort() int {
	if r.ConnectOptions == nil {
		return 0
	}
	return r.ConnectOptions.ProxyPort
}
