package acceptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/portside/acceptor/abort"
)

// testLogger keeps test output quiet.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newLoopback returns an Acceptor already listening on an ephemeral
// loopback port.
func newLoopback(t *testing.T, backlog int, checker abort.Checker) *Acceptor {
	t.Helper()
	a := New(0, backlog, checker, Options{BindAddress: "127.0.0.1"}, testLogger())
	if err := a.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(a.CloseAll)
	return a
}

func TestListen_EphemeralPortAssigned(t *testing.T) {
	a := newLoopback(t, 1, nil)
	if a.Port() <= 0 {
		t.Errorf("Port() = %d after ephemeral bind, want positive", a.Port())
	}
	if a.ListenFd() < 0 {
		t.Errorf("ListenFd() = %d after Listen", a.ListenFd())
	}
	if a.Fd() != -1 {
		t.Errorf("Fd() = %d before any accept, want -1", a.Fd())
	}
}

func TestListen_Idempotent(t *testing.T) {
	a := newLoopback(t, 1, nil)
	fd, port := a.ListenFd(), a.Port()
	if err := a.Listen(context.Background()); err != nil {
		t.Fatalf("second Listen: %v", err)
	}
	if a.ListenFd() != fd || a.Port() != port {
		t.Errorf("second Listen changed state: fd %d -> %d, port %d -> %d",
			fd, a.ListenFd(), port, a.Port())
	}
}

func TestListen_Reachable(t *testing.T) {
	a := newLoopback(t, 1, nil)
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", a.Port()), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestListen_IPv6Loopback(t *testing.T) {
	a := New(0, 1, nil, Options{AddressFamily: FamilyIPv6, BindAddress: "::1"}, testLogger())
	if err := a.Listen(context.Background()); err != nil {
		t.Skipf("IPv6 unavailable: %v", err)
	}
	defer a.CloseAll()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("[::1]:%d", a.Port()), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestListen_InvalidOptionsRejected(t *testing.T) {
	a := New(0, 1, nil, Options{AddressFamily: "ip4"}, testLogger())
	err := a.Listen(context.Background())
	if err == nil {
		a.CloseAll()
		t.Fatal("Listen accepted an invalid AddressFamily")
	}
	if IsRetryable(err) {
		t.Errorf("option error classified retryable: %v", err)
	}
}

func TestListen_ResolveFailureNotRetryable(t *testing.T) {
	a := New(-5, 1, nil, Options{}, testLogger())
	err := a.Listen(context.Background())
	if err == nil {
		a.CloseAll()
		t.Fatal("Listen accepted a negative port")
	}
	if IsRetryable(err) {
		t.Errorf("resolve failure classified retryable: %v", err)
	}
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Op != "resolve" {
		t.Errorf("err = %v, want a resolve Error", err)
	}
}

func TestListen_PortCollisionRetryable(t *testing.T) {
	a := newLoopback(t, 1, nil)
	b := New(a.Port(), 1, nil, Options{BindAddress: "127.0.0.1"}, testLogger())
	err := b.Listen(context.Background())
	if err == nil {
		b.CloseAll()
		t.Fatal("second Listen on an occupied port succeeded")
	}
	if !IsRetryable(err) {
		t.Errorf("bind collision not retryable: %v", err)
	}
}

func TestListen_AfterCloseAll(t *testing.T) {
	a := newLoopback(t, 1, nil)
	port := a.Port()
	a.CloseAll()
	if a.ListenFd() != -1 {
		t.Fatalf("ListenFd() = %d after CloseAll, want -1", a.ListenFd())
	}
	if err := a.Listen(context.Background()); err != nil {
		t.Fatalf("re-Listen after CloseAll: %v", err)
	}
	if a.Port() != port {
		t.Errorf("re-Listen moved port %d -> %d", port, a.Port())
	}
}
