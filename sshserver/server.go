package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/internal/eventbus"
	"pkt.systems/tmplay/examples"
	"pkt.systems/tmplay/internal/logx"
	"pkt.systems/tmplay/schema"
)

// Server exposes a read-mostly tape viewer over SSH. Every connection gets
// its own session loaded with the configured example.
type Server struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	Example            string
	Source             string
	Theme              string
	Listener           net.Listener
	Service            core.Service
	EventBus           *eventbus.Bus
	logger             pslog.Logger
	authorized         *AuthorizedKeys
}

// NewServer builds a viewer server from cfg.
func NewServer(cfg Config, service core.Service, bus *eventbus.Bus) *Server {
	return &Server{
		Addr:               cfg.Addr,
		HostKeyPath:        cfg.HostKeyPath,
		AuthorizedKeysPath: cfg.AuthorizedKeysPath,
		Example:            cfg.Example,
		Source:             cfg.Source,
		Theme:              cfg.Theme,
		Service:            service,
		EventBus:           bus,
	}
}

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Service == nil {
		return errors.New("ssh viewer requires a service")
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.Example != "" {
		if _, _, err := examples.Get(schema.ExampleName(s.Example)); err != nil {
			return fmt.Errorf("ssh example %q: %w", s.Example, err)
		}
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}
	authorized, err := LoadAuthorizedKeys(s.AuthorizedKeysPath)
	if err != nil {
		return err
	}
	s.authorized = authorized
	if authorized == nil {
		s.logger.Warn("ssh viewer accepts any public key", "reason", "no authorized_keys_path")
	} else {
		s.logger.Info("ssh authorized keys loaded", "keys", authorized.Len())
	}

	server := &gliderssh.Server{
		Addr:             s.Addr,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()
	s.logger.Info("ssh viewer listening", "addr", s.listenAddr(), "fingerprint", ssh.FingerprintSHA256(signer.PublicKey()))

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) listenAddr() string {
	if s.Listener != nil {
		return s.Listener.Addr().String()
	}
	return s.Addr
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", ssh.FingerprintSHA256(key))
	if !s.authorized.Allows(key) {
		log.Warn("ssh pubkey rejected", "reason", "not authorized")
		return false
	}
	log.Debug("ssh pubkey accepted")
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	log = log.With("user", sess.User(), "remote", sess.RemoteAddr().String())

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		_ = sess.Exit(1)
		return
	}

	name := schema.ExampleName(s.Example)
	if name == "" {
		name = examples.DefaultName
	}
	req := schema.CreateSessionRequest{Example: name}
	if s.Source != "" {
		req = schema.CreateSessionRequest{Source: s.Source}
	}
	created, err := s.Service.CreateSession(sess.Context(), req)
	if err != nil {
		log.Error("ssh session create failed", "err", err)
		_, _ = io.WriteString(sess, "session unavailable\n")
		_ = sess.Exit(1)
		return
	}
	id := created.Session.ID
	ctx := logx.ContextWithSessionLogger(sess.Context(), log, id)
	defer func() {
		if err := s.Service.CloseSession(context.WithoutCancel(ctx), schema.CloseSessionRequest{ID: id}); err != nil {
			log.Warn("ssh session close failed", "err", err)
		}
	}()

	var events <-chan eventbus.Event
	if s.EventBus != nil {
		var unsubscribe func()
		events, unsubscribe = s.EventBus.Subscribe(id)
		defer unsubscribe()
	}

	title := "tmplay"
	if s.Source != "" {
		title = "tmplay  custom program"
	} else if info, _, err := examples.Get(name); err == nil {
		title = "tmplay  " + info.Title
	}
	log.Info("ssh session opened", "term", pty.Term, "session", id)
	keys := make(chan key, 32)
	go readKeys(sess, keys)
	ui := newViewer(sess, s.Service, id, title, themeForName(s.Theme), events)
	ui.SetSize(pty.Window.Width, pty.Window.Height)
	if err := ui.Run(ctx, keys, winCh); err != nil {
		log.Warn("ssh viewer stopped", "err", err)
	}
	log.Info("ssh session closed", "session", id)
	_ = sess.Exit(0)
}
