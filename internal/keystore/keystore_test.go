package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gmerr "gomyst/internal/errors"
)

func plainSegments() []string {
	return []string{
		`"address":"d363ef3c06eb95460f209e6b8506e103852f75fd"`,
		`"crypto":"cipher":"aes-128-ctr"`,
		`"crypto":"ciphertext":"480e0f41c5010285ed3eb37bf84cd59ca52059a66dd864fa3787ee919fa7e0c8"`,
		`"crypto":"cipherparams":{"iv":"69cbb6f9f0c26a28077b179e874421e5"}`,
		`"crypto":"kdf":"scrypt"`,
		`"crypto":"kdfparams":"dklen":32`,
		`"crypto":"kdfparams":"n":4096`,
		`"crypto":"kdfparams":"p":6`,
		`"crypto":"kdfparams":"r":8`,
		`"crypto":"kdfparams":"salt":"d9de24291d6622d81132a94b3b73aa2bad287b28e338e38de26dde65d477b3ef"`,
		`"crypto":"mac":"b126a20eedff31785434a5f77b2a1c1886a472617280d2549c2df4f09708cd48"`,
		`"id":"c8bb6fde-6310-4227-b8f6-59020dc36769"`,
		`"version":3`,
	}
}

func escapedSegments() []string {
	out := plainSegments()
	for i, s := range out {
		out[i] = strings.ReplaceAll(s, `"`, `\"`)
	}
	return out
}

type rebuilt struct {
	Address string `json:"address"`
	ID      string `json:"id"`
	Version int    `json:"version"`
	Crypto  struct {
		Cipher       string `json:"cipher"`
		CipherParams struct {
			IV string `json:"iv"`
		} `json:"cipherparams"`
		KDFParams struct {
			N     int `json:"n"`
			DKLen int `json:"dklen"`
		} `json:"kdfparams"`
	} `json:"crypto"`
}

func TestRebuild(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{"plain", plainSegments()},
		{"escaped quotes", escapedSegments()},
		{"outer braces", append([]string{"{" + plainSegments()[0]}, append(plainSegments()[1:], plainSegments()[0]+"}")...)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Rebuild(tc.parts)
			if err != nil {
				t.Fatalf("Rebuild: %v", err)
			}
			var v rebuilt
			if err := json.Unmarshal([]byte(out), &v); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if v.Address != "d363ef3c06eb95460f209e6b8506e103852f75fd" {
				t.Errorf("address = %q", v.Address)
			}
			if v.Crypto.Cipher != "aes-128-ctr" {
				t.Errorf("cipher = %q", v.Crypto.Cipher)
			}
			if v.Crypto.KDFParams.N != 4096 || v.Crypto.KDFParams.DKLen != 32 {
				t.Errorf("kdfparams = %+v", v.Crypto.KDFParams)
			}
			if v.Crypto.CipherParams.IV != "69cbb6f9f0c26a28077b179e874421e5" {
				t.Errorf("iv = %q", v.Crypto.CipherParams.IV)
			}
			if v.ID != "c8bb6fde-6310-4227-b8f6-59020dc36769" || v.Version != 3 {
				t.Errorf("id=%q version=%d", v.ID, v.Version)
			}
		})
	}
}

func TestRebuild_MergesObjects(t *testing.T) {
	out, err := Rebuild([]string{
		`"a":{"x":1}`,
		`"a":{"y":2}`,
		`"b":"old"`,
		`"b":"new"`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"a":{"x":1,"y":2},"b":"new"}` {
		t.Errorf("got %s", out)
	}
}

func TestRebuild_BadSegment(t *testing.T) {
	for _, seg := range []string{`"address"`, `address:"x"`, `"a" junk:1`} {
		_, err := Rebuild([]string{seg, `"b":1`})
		if !gmerr.IsInput(err) {
			t.Errorf("Rebuild(%q) err = %v, want InputError", seg, err)
		}
	}
}

func TestResolve(t *testing.T) {
	single := `{"address":"0xabc"}`
	got, err := Resolve([]string{single})
	if err != nil || got != single {
		t.Errorf("single arg: got %q, %v", got, err)
	}

	if _, err := Resolve(nil); !gmerr.IsInput(err) {
		t.Errorf("no args: err = %v, want InputError", err)
	}

	got, err = Resolve([]string{`"address":"0xabc"`, `"version":3`})
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"address":"0xabc","version":3}` {
		t.Errorf("multi arg: got %s", got)
	}
}

func TestResolve_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, []byte(`{\"address\":\"0xfile\"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := Resolve([]string{path})
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"address":"0xfile"}` {
		t.Errorf("got %s", got)
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"ok", `{"address":"0xabc","version":3}`, "0xabc", false},
		{"missing", `{"id":"x"}`, "", true},
		{"not a string", `{"address":42}`, "", true},
		{"not json", `nope`, "", true},
		{"array", `["0xabc"]`, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Address([]byte(tc.in))
			if tc.wantErr {
				if !gmerr.IsInput(err) {
					t.Errorf("err = %v, want InputError", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Errorf("got %q, %v", got, err)
			}
		})
	}
}
