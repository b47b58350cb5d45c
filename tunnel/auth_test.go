package tunnel

import (
	"errors"
	"path/filepath"
	"testing"
)

func cannedPrompt(answer string, asked *int) func(string) ([]byte, error) {
	return func(string) ([]byte, error) {
		*asked++
		return []byte(answer), nil
	}
}

func TestBuildAuthMethods(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "id_plain")
	locked := filepath.Join(dir, "id_locked")
	writeTestKey(t, plain, "")
	writeTestKey(t, locked, "hunter2")

	tests := []struct {
		name      string
		cfg       SSHConfig
		answer    string
		wantN     int
		wantAsked int
		wantErr   bool
	}{
		{name: "plain key", cfg: SSHConfig{KeyPath: plain}, wantN: 1},
		{name: "encrypted key", cfg: SSHConfig{KeyPath: locked}, answer: "hunter2", wantN: 1, wantAsked: 1},
		{name: "wrong passphrase", cfg: SSHConfig{KeyPath: locked}, answer: "nope", wantAsked: 1, wantErr: true},
		{name: "missing key", cfg: SSHConfig{KeyPath: filepath.Join(dir, "absent")}, wantErr: true},
		{name: "password", cfg: SSHConfig{User: "u", Host: "h", PromptPass: true}, answer: "pw", wantN: 1, wantAsked: 1},
		{name: "key and password", cfg: SSHConfig{KeyPath: plain, PromptPass: true}, answer: "pw", wantN: 2, wantAsked: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			asked := 0
			cfg := tc.cfg
			cfg.Prompt = cannedPrompt(tc.answer, &asked)

			methods, err := BuildAuthMethods(&cfg)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildAuthMethods: %v", err)
			}
			if len(methods) != tc.wantN {
				t.Errorf("methods = %d, want %d", len(methods), tc.wantN)
			}
			if asked != tc.wantAsked {
				t.Errorf("prompted %d times, want %d", asked, tc.wantAsked)
			}
		})
	}
}

func TestBuildAuthMethods_AgentUnset(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	_, err := BuildAuthMethods(&SSHConfig{UseAgent: true, Prompt: cannedPrompt("", new(int))})
	if err == nil {
		t.Fatal("expected error when SSH_AUTH_SOCK is empty")
	}
}

func TestBuildAuthMethods_PromptError(t *testing.T) {
	boom := errors.New("no tty")
	cfg := &SSHConfig{PromptPass: true, Prompt: func(string) ([]byte, error) { return nil, boom }}
	if _, err := BuildAuthMethods(cfg); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestHostKeyCallback(t *testing.T) {
	if cb, err := hostKeyCallback(&SSHConfig{}); err != nil || cb == nil {
		t.Fatalf("insecure callback: cb=%v err=%v", cb, err)
	}

	_, err := hostKeyCallback(&SSHConfig{
		StrictHostKey: true,
		KnownHosts:    filepath.Join(t.TempDir(), "missing"),
	})
	if err == nil {
		t.Error("expected error for missing known_hosts")
	}
}
