package config

import (
	"errors"
	"strings"
	"testing"

	gmerr "gomyst/internal/errors"
)

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		spec     string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"admin@bastion.example.com", "admin", "bastion.example.com", 22, false},
		{"admin@gw:2222", "admin", "gw", 2222, false},
		{"gw", "", "gw", 22, false},
		{"gw:0", "", "", 0, true},
		{"gw:99999", "", "", 0, true},
		{"", "", "", 0, true},
		{"a@b@c", "", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s@%s:%d", user, host, port)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got %s@%s:%d", user, host, port)
			}
		})
	}
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		in        string
		allowZero bool
		want      int
		wantErr   bool
	}{
		{"10000", false, 10000, false},
		{" 80 ", false, 80, false},
		{"0", true, 0, false},
		{"0", false, 0, true},
		{"65536", true, 0, true},
		{"http", false, 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePort(tt.in, tt.allowZero)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePort(%q, %v) = %d, %v", tt.in, tt.allowZero, got, err)
		}
	}
}

func TestParseRemote(t *testing.T) {
	tests := []struct {
		in      string
		want    RemoteKind
		wantErr bool
	}{
		{"provider.example:443", RemoteTCP, false},
		{"[::1]:8080", RemoteTCP, false},
		{"ws://relay.example/tunnel", RemoteWebSocket, false},
		{"WSS://relay.example", RemoteWebSocket, false},
		{"ws:///nohost", 0, true},
		{"provider.example", 0, true},
		{":443", 0, true},
		{"host:0", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRemote(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRemote(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestProviderList(t *testing.T) {
	c := &Config{Providers: " 0xa, ,0xb,,"}
	got := c.ProviderList()
	if len(got) != 2 || got[0] != "0xa" || got[1] != "0xb" {
		t.Errorf("ProviderList = %q", got)
	}
	if (&Config{Providers: " , "}).ProviderList() != nil {
		t.Error("blank providers should yield nil")
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New()
	if c.BaseURL() != "http://127.0.0.1:4050" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
	if c.ProxyPort != 10000 || c.ServiceType != "wireguard" || c.TermsVersion != "0.0.53" {
		t.Errorf("defaults = %+v", c)
	}
}

func TestApplyTunnelSpec(t *testing.T) {
	c := New()
	c.TunnelSpec = "ops@gw.internal:2200"
	if err := c.ApplyTunnelSpec(); err != nil {
		t.Fatal(err)
	}
	if !c.TunnelEnabled || c.TunnelUser != "ops" || c.TunnelHost != "gw.internal" || c.TunnelPort != 2200 {
		t.Errorf("tunnel = %+v", c)
	}

	c.TunnelSpec = "bad:port:spec"
	var ce *gmerr.ConfigError
	if err := c.ApplyTunnelSpec(); !errors.As(err, &ce) || ce.Field != "tunnel" {
		t.Errorf("err = %v, want ConfigError on tunnel", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string // "" = valid
		wantSub string
	}{
		{"daemon defaults", func(c *Config) { c.Command = CmdDaemon }, "", ""},
		{"bad address", func(c *Config) { c.TequilapiAddress = "localhost" }, "tequilapi.address", "hint:"},
		{"bad api port", func(c *Config) { c.TequilapiPort = 0 }, "tequilapi.port", ""},
		{"negative poll", func(c *Config) { c.PollDelay = -1 }, "poll-delay", ""},
		{"import without key", func(c *Config) {
			c.Command = CmdCLI
			c.ImportPassphrase = "pw"
		}, "key", "hint:"},
		{"up without providers", func(c *Config) {
			c.Command = CmdConnectionUp
			c.Providers = ","
		}, "providers", "provider id is required"},
		{"up ok", func(c *Config) {
			c.Command = CmdConnectionUp
			c.Providers = "0xp"
		}, "", ""},
		{"up bad remote", func(c *Config) {
			c.Command = CmdConnectionUp
			c.Providers = "0xp"
			c.Remote = "nowhere"
		}, "remote", ""},
		{"proxy needs target", func(c *Config) { c.Command = CmdProxy }, "remote", "exactly one"},
		{"proxy both targets", func(c *Config) {
			c.Command = CmdProxy
			c.Remote = "h:1"
			c.SOCKS = true
		}, "remote", "exactly one"},
		{"proxy socks", func(c *Config) {
			c.Command = CmdProxy
			c.SOCKS = true
			c.ProxyPort = 0
		}, "", ""},
		{"proxy ws over ssh", func(c *Config) {
			c.Command = CmdProxy
			c.Remote = "ws://relay/x"
			c.TunnelEnabled = true
			c.TunnelHost = "gw"
		}, "tunnel", "WebSocket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			tt.mutate(c)
			err := c.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *gmerr.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
			if tt.wantSub != "" && !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err, tt.wantSub)
			}
		})
	}
}
