package acceptor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// freePort reserves a loopback TCP port and releases it again, so the
// caller gets a port that is free at the time of the call.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestConnector_RoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	a := newLoopback(t, 1, nil)

	c := NewConnector("127.0.0.1", a.Port(), nil, Options{}, testLogger())
	defer c.Close()

	done := make(chan error, 1)
	go func() {
		if err := c.Connect(context.Background()); err != nil {
			done <- err
			return
		}
		if _, err := c.Write([]byte("ping"), true); err != nil {
			done <- err
			return
		}
		buf := make([]byte, 4)
		if _, err := c.Read(buf, true); err != nil {
			done <- err
			return
		}
		if string(buf) != "gnip" {
			done <- fmt.Errorf("reply = %q, want %q", buf, "gnip")
			return
		}
		done <- nil
	}()

	if err := a.AcceptNextConnection(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("accept: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := a.Read(buf, true); err != nil {
		t.Fatalf("server read: %v", err)
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	if _, err := a.Write(buf, true); err != nil {
		t.Fatalf("server write: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("client: %v", err)
	}
}

func TestConnector_ConnectIdempotent(t *testing.T) {
	a := newLoopback(t, 1, nil)
	c := NewConnector("127.0.0.1", a.Port(), nil, Options{}, testLogger())
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	fd := c.Fd()
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if c.Fd() != fd {
		t.Errorf("second Connect changed fd %d -> %d", fd, c.Fd())
	}
}

func TestConnector_RefusedIsRetryable(t *testing.T) {
	c := NewConnector("127.0.0.1", freePort(t), nil, Options{}, testLogger())
	err := c.Connect(context.Background())
	if err == nil {
		c.Close()
		t.Fatal("Connect to a closed port succeeded")
	}
	if !IsRetryable(err) {
		t.Errorf("refused connect not retryable: %v", err)
	}
	if c.Fd() != -1 {
		t.Errorf("Fd() = %d after failed connect, want -1", c.Fd())
	}
}

func TestConnector_ResolveFailureStopsRetries(t *testing.T) {
	c := NewConnector("", 80, nil, Options{}, testLogger())

	start := time.Now()
	err := c.ConnectWithRetry(context.Background(), 5)
	elapsed := time.Since(start)

	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Op != "resolve" {
		t.Fatalf("err = %v, want a resolve failure", err)
	}
	// Non-retryable failures must not consume backoff delays.
	if elapsed > 500*time.Millisecond {
		t.Errorf("gave up after %v, want an immediate return", elapsed)
	}
}

func TestConnector_RetryBacksOffThenGivesUp(t *testing.T) {
	c := NewConnector("127.0.0.1", freePort(t), nil, Options{}, testLogger())
	c.backoff.SetClock(immediateClock{})

	start := time.Now()
	err := c.ConnectWithRetry(context.Background(), 3)
	if err == nil {
		c.Close()
		t.Fatal("ConnectWithRetry to a closed port succeeded")
	}
	if !IsRetryable(err) {
		t.Errorf("final error not retryable: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("retries took %v with an instant backoff", elapsed)
	}
}

func TestConnector_RetryEventuallyConnects(t *testing.T) {
	defer goleak.VerifyNone(t)
	port := freePort(t)

	c := NewConnector("127.0.0.1", port, nil, Options{}, testLogger())
	defer c.Close()
	c.backoff.Base = 30 * time.Millisecond
	c.backoff.Multiplier = 1.0
	c.backoff.Jitter = 0

	a := New(port, 1, nil, Options{BindAddress: "127.0.0.1"}, testLogger())
	defer a.CloseAll()
	listened := make(chan error, 1)
	go func() {
		time.Sleep(100 * time.Millisecond)
		listened <- a.Listen(context.Background())
	}()

	err := c.ConnectWithRetry(context.Background(), 30)
	if lerr := <-listened; lerr != nil {
		t.Fatalf("delayed Listen: %v", lerr)
	}
	if err != nil {
		t.Fatalf("ConnectWithRetry: %v", err)
	}
	if c.Fd() < 0 {
		t.Errorf("Fd() = %d after successful retry", c.Fd())
	}
}

func TestConnector_RetryStopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := NewConnector("127.0.0.1", freePort(t), nil, Options{}, testLogger())
	c.backoff.SetClock(neverClock{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.ConnectWithRetry(ctx, 5) }()

	// Let the loop reach its backoff wait, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not stop after cancel")
	}
}

func TestConnector_Accessors(t *testing.T) {
	c := NewConnector("example.net", 9000, nil, Options{}, testLogger())
	if c.Host() != "example.net" || c.Port() != 9000 {
		t.Errorf("accessors = %q, %d; want example.net, 9000", c.Host(), c.Port())
	}
	if c.Fd() != -1 {
		t.Errorf("Fd() = %d before Connect, want -1", c.Fd())
	}
}
