package enginegrpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestServerKeepaliveExpires(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(t.TempDir(), "engine.sock")
	srv := NewServer(Config{
		SocketPath:        socketPath,
		KeepaliveInterval: 20 * time.Millisecond,
		KeepaliveMisses:   2,
	}, &fakeBackend{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	waitForSocketReady(t, socketPath, 500*time.Millisecond)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("server exited with error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not exit after keepalive misses")
	}
}

func TestClientKeepAliveKeepsServerUp(t *testing.T) {
	t.Parallel()
	socketPath := filepath.Join(t.TempDir(), "engine.sock")
	srv := NewServer(Config{
		SocketPath:        socketPath,
		KeepaliveInterval: 50 * time.Millisecond,
		KeepaliveMisses:   3,
	}, &fakeBackend{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	waitForSocketReady(t, socketPath, 500*time.Millisecond)
	client, err := Dial(context.Background(), socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	pingCtx, stopPing := context.WithCancel(context.Background())
	defer stopPing()
	go client.KeepAlive(pingCtx, 20*time.Millisecond)

	select {
	case err := <-errCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("server exit error after cancel: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not exit after cancel")
	}
}

func waitForSocketReady(t *testing.T, socketPath string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			_ = conn.Close()
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("socket not ready: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
