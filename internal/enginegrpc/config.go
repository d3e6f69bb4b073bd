package enginegrpc

import "time"

// Config controls the engine gRPC server/client setup.
type Config struct {
	SocketPath string
	// KeepaliveInterval and KeepaliveMisses enable idle shutdown on the
	// server and periodic pings on the client. Zero disables both.
	KeepaliveInterval time.Duration
	KeepaliveMisses   int
}
