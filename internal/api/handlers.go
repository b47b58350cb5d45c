package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	gmerr "gomyst/internal/errors"
	"gomyst/internal/keystore"
)

func (s *Server) healthcheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthcheckResponse{
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
		Process: s.pid,
		Version: Version,
		BuildInfo: BuildInfo{
			Commit:      BuildCommit,
			Branch:      BuildBranch,
			BuildNumber: BuildNumber,
		},
	})
}

func (s *Server) config(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, configResponse(s.engine.ConfigSnapshot()))
}

func (s *Server) updateTerms(w http.ResponseWriter, r *http.Request) {
	var req TermsRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	s.engine.UpdateTerms(req.AgreedConsumer, req.AgreedProvider, req.AgreedVersion)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) importIdentity(w http.ResponseWriter, r *http.Request) {
	var req IdentityImportRequest
	if err := decodeRequired(r, &req, "data"); err != nil {
		s.fail(w, err)
		return
	}

	blob, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		s.fail(w, gmerr.Invalid("invalid base64 keystore", err))
		return
	}
	address, err := keystore.Address(blob)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.engine.RegisterIdentity(address)
	if req.SetDefault {
		s.engine.SelectCurrentIdentity(address)
	}
	s.logger.Verbose("imported identity %s (%d known)", address, len(s.engine.Identities()))
	writeJSON(w, http.StatusOK, IdentityRef{ID: address})
}

func (s *Server) currentIdentity(w http.ResponseWriter, r *http.Request) {
	var req IdentityCurrentRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	id, ok := s.engine.SelectCurrentIdentity(req.ID)
	if !ok {
		s.fail(w, gmerr.NotFound("identity", "current"))
		return
	}
	writeJSON(w, http.StatusOK, IdentityRef{ID: id})
}

func (s *Server) identity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.engine.IdentityExists(id) {
		s.fail(w, gmerr.NotFound("identity", id))
		return
	}
	writeJSON(w, http.StatusOK, IdentityInfo{ID: id, RegistrationStatus: RegistrationStatus})
}

func (s *Server) connectionStatus(w http.ResponseWriter, r *http.Request) {
	port := 0
	if raw := r.URL.Query().Get("id"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			s.fail(w, gmerr.Invalid("id must be an integer port", err))
			return
		}
		port = p
	}
	writeJSON(w, http.StatusOK, connectionInfo(s.engine.ConnectionStatus(port)))
}

func (s *Server) createConnection(w http.ResponseWriter, r *http.Request) {
	var req ConnectionCreateRequest
	err := decodeRequired(r, &req, "consumer_id", "hermes_id", "service_type", "filter")
	if err != nil {
		s.fail(w, err)
		return
	}
	if req.Filter.Providers == nil {
		s.fail(w, gmerr.Invalid("missing field filter.providers", nil))
		return
	}
	provider := req.provider()
	if provider == "" {
		s.fail(w, gmerr.Invalid("provider id is required", nil))
		return
	}

	if hermes, err := s.engine.HermesID(); err == nil && hermes != req.HermesID {
		s.logger.Warn("connection names hermes %s, active chain uses %s", req.HermesID, hermes)
	}

	snap := s.engine.CreateConnection(req.proxyPort(), req.ConsumerID, provider, req.HermesID, req.ServiceType)
	s.logger.Verbose("connection %s on port %d to %s", snap.SessionID, req.proxyPort(), provider)
	writeJSON(w, http.StatusOK, connectionInfo(snap))
}

// ── helpers ──────────────────────────────────────────────────────────

// decode reads a JSON body into v.  An empty body leaves v zeroed.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return gmerr.Invalid("malformed JSON body", err)
}

// decodeRequired is decode for bodies whose listed top-level fields
// must be present and non-null.  An empty body is missing all of them.
func decodeRequired(r *http.Request, v any, fields ...string) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return gmerr.Invalid("reading body", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(raw, &present); err != nil {
		return gmerr.Invalid("malformed JSON body", err)
	}
	for _, f := range fields {
		if val, ok := present[f]; !ok || string(val) == "null" {
			return gmerr.Invalid("missing field "+f, nil)
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return gmerr.Invalid("malformed JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// fail maps err to a status: input errors are 400 with the reason as
// plain text, lookups are 404, anything else 500.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case gmerr.IsInput(err):
		s.logger.Debug("rejecting request: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	case gmerr.IsNotFound(err):
		w.WriteHeader(http.StatusNotFound)
	default:
		s.logger.Error("request failed: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
