package tunnel

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	gmerr "gomyst/internal/errors"
	"gomyst/util"
)

// ── helpers ──────────────────────────────────────────────────────────

// directTCPIP is the RFC 4254 §7.2 channel payload.
type directTCPIP struct {
	DestAddr string
	DestPort uint32
	OrigAddr string
	OrigPort uint32
}

// startGateway runs an in-process SSH server that accepts any client and
// forwards direct-tcpip channels.  It returns the listen port.
func startGateway(t testing.TB) int {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &ssh.ServerConfig{NoClientAuth: true}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveGateway(c, cfg)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func serveGateway(c net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		c.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "direct-tcpip" {
			nc.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		var p directTCPIP
		if err := ssh.Unmarshal(nc.ExtraData(), &p); err != nil {
			nc.Reject(ssh.ConnectionFailed, "bad payload")
			continue
		}
		target, err := net.Dial("tcp", net.JoinHostPort(p.DestAddr, strconv.Itoa(int(p.DestPort))))
		if err != nil {
			nc.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		ch, creqs, err := nc.Accept()
		if err != nil {
			target.Close()
			continue
		}
		go ssh.DiscardRequests(creqs)
		go func() {
			io.Copy(ch, target) //nolint:errcheck
			ch.Close()
		}()
		go func() {
			io.Copy(target, ch) //nolint:errcheck
			target.(*net.TCPConn).CloseWrite()
		}()
	}
}

// writeTestKey writes a fresh ed25519 key in OpenSSH format, encrypted
// when passphrase is non-empty.
func writeTestKey(t testing.TB, path, passphrase string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test@gomyst")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test@gomyst", []byte(passphrase))
	}
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
}

func echoListener(t testing.TB) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c) //nolint:errcheck
			}()
		}
	}()
	return ln
}

func testTunnel(t testing.TB, port int) *SSHTunnel {
	t.Helper()
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath, "")

	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)
	return NewSSHTunnel(&SSHConfig{
		User:        "tester",
		Host:        "127.0.0.1",
		Port:        port,
		KeyPath:     keyPath,
		ConnTimeout: 5 * time.Second,
	}, logger)
}

// ── tests ────────────────────────────────────────────────────────────

func TestSSHTunnel_DialThroughGateway(t *testing.T) {
	port := startGateway(t)
	echo := echoListener(t)

	tun := testTunnel(t, port)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tun.Close()

	if !tun.IsAlive() {
		t.Fatal("tunnel should be alive after Connect")
	}

	conn, err := tun.Dial(ctx, "tcp", echo.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "ping" {
		t.Errorf("got %q, want %q", buf, "ping")
	}
}

func TestSSHTunnel_DialAfterClose(t *testing.T) {
	port := startGateway(t)
	tun := testTunnel(t, port)

	ctx := context.Background()
	if err := tun.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := tun.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if tun.IsAlive() {
		t.Error("tunnel should not be alive after Close")
	}

	_, err := tun.Dial(ctx, "tcp", "127.0.0.1:1")
	if !errors.Is(err, gmerr.ErrTunnelClosed) {
		t.Errorf("err = %v, want ErrTunnelClosed", err)
	}
}

func TestSSHTunnel_ConnectRefused(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	tun := testTunnel(t, port)

	err = tun.Connect(context.Background())
	if err == nil {
		tun.Close()
		t.Fatal("expected error connecting to a closed port")
	}
	var ne *gmerr.NetworkError
	if !errors.As(err, &ne) {
		t.Errorf("err = %T, want *NetworkError", err)
	}
}
