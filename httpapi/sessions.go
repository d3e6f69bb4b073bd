package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"pkt.systems/tmplay/internal/logx"
	"pkt.systems/tmplay/schema"
)

// session binds a browser cookie to a core playground session.
type session struct {
	id        schema.SessionID
	expiresAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

type sessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	baseCtx  context.Context
	items    map[string]session
	onExpire func(session)
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ttl:     ttl,
		baseCtx: context.TODO(),
		items:   make(map[string]session),
	}
}

func (s *sessionStore) create(id schema.SessionID) (string, session) {
	token := randomToken(32)
	parent := s.baseContext()
	ctx, cancel := context.WithCancel(parent)
	entry := session{
		id:        id,
		expiresAt: time.Now().Add(s.ttl),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.mu.Lock()
	s.items[token] = entry
	s.mu.Unlock()
	logx.WithSession(context.Background(), id).Info("http session created", "expires", entry.expiresAt.Format(time.RFC3339))
	return token, entry
}

func (s *sessionStore) get(token string) (session, bool) {
	s.mu.Lock()
	entry, ok := s.items[token]
	if !ok {
		s.mu.Unlock()
		return session{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.items, token)
		s.mu.Unlock()
		s.expire(entry)
		return session{}, false
	}
	s.mu.Unlock()
	return entry, true
}

// peek looks a token up without expiring it.
func (s *sessionStore) peek(token string) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[token]
	return entry, ok
}

func (s *sessionStore) delete(token string) (session, bool) {
	s.mu.Lock()
	entry, ok := s.items[token]
	if ok {
		delete(s.items, token)
	}
	s.mu.Unlock()
	if ok {
		if entry.cancel != nil {
			entry.cancel()
		}
		logx.WithSession(context.Background(), entry.id).Info("http session deleted")
	}
	return entry, ok
}

// sweep expires every session past its deadline and returns how many went.
func (s *sessionStore) sweep(now time.Time) int {
	s.mu.Lock()
	expired := make([]session, 0)
	for token, entry := range s.items {
		if now.After(entry.expiresAt) {
			delete(s.items, token)
			expired = append(expired, entry)
		}
	}
	s.mu.Unlock()
	for _, entry := range expired {
		s.expire(entry)
	}
	return len(expired)
}

func (s *sessionStore) expire(entry session) {
	if entry.cancel != nil {
		entry.cancel()
	}
	logx.WithSession(context.Background(), entry.id).Info("http session expired")
	s.mu.Lock()
	onExpire := s.onExpire
	s.mu.Unlock()
	if onExpire != nil {
		onExpire(entry)
	}
}

func (s *sessionStore) setExpireHook(fn func(session)) {
	s.mu.Lock()
	s.onExpire = fn
	s.mu.Unlock()
}

func (s *sessionStore) setBaseContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	s.mu.Lock()
	s.baseCtx = ctx
	for token, entry := range s.items {
		if entry.cancel != nil {
			entry.cancel()
		}
		entry.ctx, entry.cancel = context.WithCancel(ctx)
		s.items[token] = entry
	}
	s.mu.Unlock()
	logx.Ctx(context.Background()).Debug("http session base context set")
}

func (s *sessionStore) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.TODO()
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func randomToken(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
