package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gomyst/internal/api"
	gmerr "gomyst/internal/errors"
	"gomyst/internal/retry"
	"gomyst/internal/state"
	"gomyst/util"
)

func quietLogger() *util.Logger {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}

// recorder captures the last request a handler saw.
type recorder struct {
	method string
	path   string
	query  string
	body   map[string]any
}

func stub(t *testing.T, status int, reply string) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method, rec.path, rec.query = r.Method, r.URL.Path, r.URL.RawQuery
		rec.body = nil
		json.NewDecoder(r.Body).Decode(&rec.body) //nolint:errcheck
		w.WriteHeader(status)
		io.WriteString(w, reply) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, quietLogger()), rec
}

func TestClient_ImportIdentityPayload(t *testing.T) {
	c, rec := stub(t, http.StatusOK, `{"id":"0xabc"}`)

	id, err := c.ImportIdentity(context.Background(), "secret", `{"address":"0xabc"}`)
	if err != nil {
		t.Fatal(err)
	}
	if id != "0xabc" {
		t.Errorf("id = %q", id)
	}
	if rec.method != http.MethodPost || rec.path != "/identities-import" {
		t.Errorf("request = %s %s", rec.method, rec.path)
	}
	want := base64.StdEncoding.EncodeToString([]byte(`{"address":"0xabc"}`))
	if rec.body["data"] != want || rec.body["current_passphrase"] != "secret" || rec.body["set_default"] != true {
		t.Errorf("body = %v", rec.body)
	}
}

func TestClient_CurrentIdentityPayload(t *testing.T) {
	c, rec := stub(t, http.StatusOK, `{"id":"0x1"}`)
	if _, err := c.CurrentIdentity(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rec.method != http.MethodPut || rec.body["id"] != "" || rec.body["passphrase"] != "" {
		t.Errorf("request = %s %v", rec.method, rec.body)
	}
}

func TestClient_SmartConnectionCreatePayload(t *testing.T) {
	c, rec := stub(t, http.StatusOK, `{"status":"Connected"}`)

	info, err := c.SmartConnectionCreate(context.Background(), "0xconsumer", "0xhermes", "wireguard", []string{"0xp1", "0xp2"}, 10000)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != "Connected" {
		t.Errorf("status = %q", info.Status)
	}

	b := rec.body
	if v, ok := b["provider_id"]; !ok || v != nil {
		t.Errorf("provider_id = %v (present=%v), want explicit null", v, ok)
	}
	if b["consumer_id"] != "0xconsumer" || b["hermes_id"] != "0xhermes" || b["service_type"] != "wireguard" {
		t.Errorf("body = %v", b)
	}
	opts, _ := b["connect_options"].(map[string]any)
	if opts["kill_switch"] != false || opts["dns"] != "auto" || opts["proxy_port"] != float64(10000) {
		t.Errorf("connect_options = %v", opts)
	}
	filter, _ := b["filter"].(map[string]any)
	if providers, _ := filter["providers"].([]any); len(providers) != 2 {
		t.Errorf("filter = %v", filter)
	}
}

func TestClient_ConnectionStatusQuery(t *testing.T) {
	c, rec := stub(t, http.StatusOK, `{"status":"NotConnected"}`)
	info, err := c.ConnectionStatus(context.Background(), 10000)
	if err != nil {
		t.Fatal(err)
	}
	if rec.query != "id=10000" || info.Status != "NotConnected" {
		t.Errorf("query=%q status=%q", rec.query, info.Status)
	}
}

func TestClient_HTTPStatusError(t *testing.T) {
	c, _ := stub(t, http.StatusBadRequest, "provider id is required\n")

	_, err := c.SmartConnectionCreate(context.Background(), "a", "b", "c", nil, 1)
	var se *gmerr.HTTPStatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *HTTPStatusError", err)
	}
	if se.Status != http.StatusBadRequest || se.Body != "provider id is required" {
		t.Errorf("err = %+v", se)
	}
}

func TestClient_WaitHealthy(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"version":"0.0.1"}`) //nolint:errcheck
	}))
	defer srv.Close()

	c := New(srv.URL, quietLogger())
	err := c.WaitHealthy(context.Background(), &retry.Backoff{Initial: time.Millisecond, Attempts: 5})
	if err != nil {
		t.Fatalf("WaitHealthy: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

// TestClient_AgainstFacade drives the real control API end to end.
func TestClient_AgainstFacade(t *testing.T) {
	engine := state.New("0.0.53")
	srv := httptest.NewServer(api.NewServer(engine, quietLogger()).Handler())
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL, quietLogger())

	if _, err := c.Healthcheck(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateTerms(ctx, true, false, "0.0.53"); err != nil {
		t.Fatal(err)
	}
	cfg, err := c.FetchConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Bool("terms.consumer-agreed") || cfg.Bool("terms.provider-agreed") {
		t.Errorf("terms not applied")
	}
	hermes, err := cfg.HermesID()
	if err != nil || hermes != state.Chain2Hermes {
		t.Errorf("HermesID = %q, %v", hermes, err)
	}

	id, err := c.ImportIdentity(ctx, "pw", `{"address":"0xme"}`)
	if err != nil || id != "0xme" {
		t.Fatalf("import = %q, %v", id, err)
	}
	cur, err := c.CurrentIdentity(ctx)
	if err != nil || cur != "0xme" {
		t.Fatalf("current = %q, %v", cur, err)
	}
	info, err := c.Identity(ctx, cur)
	if err != nil || info.RegistrationStatus != "Registered" {
		t.Fatalf("identity = %+v, %v", info, err)
	}

	conn, err := c.SmartConnectionCreate(ctx, cur, hermes, "wireguard", []string{"0xprov"}, 10000)
	if err != nil {
		t.Fatal(err)
	}
	if conn.Status != "Connected" || conn.ProviderID != "0xprov" || conn.SessionID == "" {
		t.Errorf("connection = %+v", conn)
	}
	st, err := c.ConnectionStatus(ctx, 10000)
	if err != nil || st.SessionID != conn.SessionID {
		t.Errorf("status = %+v, %v", st, err)
	}

	_, err = c.Identity(ctx, "0xunknown")
	var se *gmerr.HTTPStatusError
	if !errors.As(err, &se) || se.Status != http.StatusNotFound {
		t.Errorf("unknown identity err = %v", err)
	}
}
