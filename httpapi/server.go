package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tmplay/core"
	"pkt.systems/tmplay/internal/logx"
	"pkt.systems/tmplay/schema"
)

const (
	shutdownTimeout = 5 * time.Second
	sweepInterval   = time.Minute
	maxBodyBytes    = 1 << 20
)

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	service  core.Service
	sessions *sessionStore
	hub      *Hub
	basePath string
}

// NewServer constructs an HTTP server. hub may be nil when no stream is served.
func NewServer(cfg Config, service core.Service, hub *Hub) *Server {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if strings.TrimSpace(cfg.SessionCookie) == "" {
		cfg.SessionCookie = "tmplay_session"
	}
	if hub == nil {
		hub = NewHub(cfg.HistorySize)
	}
	s := &Server{
		cfg:      cfg,
		service:  service,
		sessions: newSessionStore(ttl),
		hub:      hub,
		basePath: normalizeBasePath(cfg.BasePath),
	}
	s.sessions.setExpireHook(s.closeCoreSession)
	return s
}

// SetBaseContext sets the parent context for session lifetimes and starts
// the expiry sweeper, which stops with ctx.
func (s *Server) SetBaseContext(ctx context.Context) {
	if s == nil || ctx == nil {
		return
	}
	s.sessions.setBaseContext(ctx)
	go s.sweepLoop(ctx)
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sessions.sweep(now); n > 0 {
				pslog.Ctx(ctx).Debug("http sessions swept", "expired", n)
			}
		}
	}
}

// closeCoreSession stops the playground behind an expired or deleted cookie.
func (s *Server) closeCoreSession(entry session) {
	ctx := logx.ContextWithSession(context.Background(), entry.id)
	if err := s.service.CloseSession(ctx, schema.CloseSessionRequest{ID: entry.id}); err != nil && !errors.Is(err, schema.ErrSessionNotFound) {
		logx.WithSession(ctx, entry.id).Warn("http session close failed", "err", err)
	}
	s.hub.Drop(entry.id)
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)

	mux.HandleFunc("/api/engine", s.handleEngine)
	mux.HandleFunc("/api/examples", s.handleExamples)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/examples/load", s.requireSession(s.handleLoadExample))
	mux.HandleFunc("/api/source", s.requireSession(s.handleSource))
	mux.HandleFunc("/api/tape", s.requireSession(s.handleTape))
	mux.HandleFunc("/api/compile", s.requireSession(s.handleCompile))
	mux.HandleFunc("/api/run", s.requireSession(s.handleRun))
	mux.HandleFunc("/api/playback", s.requireSession(s.handlePlayback))
	mux.HandleFunc("/api/speed", s.requireSession(s.handleSpeed))
	mux.HandleFunc("/api/viewport", s.requireSession(s.handleViewport))
	mux.HandleFunc("/api/artifacts/", s.requireSession(s.handleArtifact))
	mux.HandleFunc("/api/stream", s.requireSession(s.handleStream))

	return mountAt(s.basePath, withRequestLogging(mux, s.lookupSession))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   "tmplay",
		"engine": s.service.EngineStatus(r.Context()),
	})
}

func (s *Server) handleEngine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.service.EngineStatus(r.Context()))
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.service.ListExamples(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"examples": resp.Examples})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.requireSession(s.handleGetSession)(w, r)
	case http.MethodPost:
		s.handleCreateSession(w, r)
	case http.MethodDelete:
		s.handleDeleteSession(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	resp, err := s.service.GetSession(r.Context(), schema.GetSessionRequest{ID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": resp.Session})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var payload struct {
		Example string `json:"example"`
		Source  string `json:"source"`
		Tape    string `json:"tape"`
	}
	if err := decodeOptionalJSON(r, &payload); err != nil {
		log.Warn("http session decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if token := s.sessionToken(r); token != "" {
		if old, ok := s.sessions.delete(token); ok {
			s.closeCoreSession(old)
		}
	}
	resp, err := s.service.CreateSession(r.Context(), schema.CreateSessionRequest{
		Source:  payload.Source,
		Tape:    payload.Tape,
		Example: schema.ExampleName(payload.Example),
	})
	if err != nil {
		log.Warn("http session create failed", "err", err)
		writeServiceError(w, err)
		return
	}
	token, entry := s.sessions.create(resp.Session.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    token,
		Path:     s.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  entry.expiresAt,
	})
	writeJSON(w, http.StatusCreated, map[string]any{"session": resp.Session})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if token := s.sessionToken(r); token != "" {
		if entry, ok := s.sessions.delete(token); ok {
			s.closeCoreSession(entry)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    "",
		Path:     s.cookiePath(),
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLoadExample(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.LoadExample(r.Context(), schema.LoadExampleRequest{ID: id, Name: schema.ExampleName(payload.Name)})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": resp.Session})
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Source string `json:"source"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.SetSource(r.Context(), schema.SetSourceRequest{ID: id, Source: payload.Source})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": resp.Session})
}

func (s *Server) handleTape(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Tape string `json:"tape"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.SetTape(r.Context(), schema.SetTapeRequest{ID: id, Tape: payload.Tape})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": resp.Session})
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.service.Compile(sessionContext(r.Context()), schema.CompileRequest{ID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !resp.Ready {
		s.writeNotReady(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true, "result": resp.Result})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp, err := s.service.Run(sessionContext(r.Context()), schema.RunRequest{ID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !resp.Ready {
		s.writeNotReady(w, r)
		return
	}
	payload := map[string]any{
		"ready":    true,
		"status":   resp.Status,
		"playback": resp.Playback,
	}
	if resp.Error != "" {
		payload["error"] = resp.Error
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) writeNotReady(w http.ResponseWriter, r *http.Request) {
	status := s.service.EngineStatus(r.Context())
	payload := map[string]any{"ready": false}
	if status.Error != "" {
		payload["error"] = status.Error
	}
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusServiceUnavailable, payload)
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Action string `json:"action"`
		Step   int    `json:"step"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.Playback(r.Context(), schema.PlaybackRequest{
		ID:     id,
		Action: schema.PlaybackAction(payload.Action),
		Step:   payload.Step,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playback": resp.Playback})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		SpeedMS int `json:"speed_ms"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.SetSpeed(r.Context(), schema.SetSpeedRequest{ID: id, SpeedMS: payload.SpeedMS})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playback": resp.Playback, "presets": schema.SpeedPresets()})
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	switch r.Method {
	case http.MethodGet:
		cells := parseInt(r.URL.Query().Get("cells"), s.cfg.DefaultCells)
		resp, err := s.service.GetViewport(r.Context(), schema.GetViewportRequest{ID: id, VisibleCells: cells})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"viewport": resp.Viewport})
	case http.MethodPost:
		var payload struct {
			FollowHead bool `json:"follow_head"`
			Offset     *int `json:"offset"`
			Scroll     int  `json:"scroll"`
			Cells      int  `json:"cells"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if _, err := s.service.SetViewport(r.Context(), schema.SetViewportRequest{
			ID:     id,
			Follow: payload.FollowHead,
			Offset: payload.Offset,
			Scroll: payload.Scroll,
		}); err != nil {
			writeServiceError(w, err)
			return
		}
		cells := payload.Cells
		if cells == 0 {
			cells = s.cfg.DefaultCells
		}
		resp, err := s.service.GetViewport(r.Context(), schema.GetViewportRequest{ID: id, VisibleCells: cells})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"viewport": resp.Viewport})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var kind schema.ArtifactKind
	contentType := "text/plain; charset=utf-8"
	switch strings.TrimPrefix(r.URL.Path, "/api/artifacts/") {
	case "output.c":
		kind = schema.ArtifactC
		contentType = "text/x-c; charset=utf-8"
	case "graph.dot":
		kind = schema.ArtifactDot
		contentType = "text/vnd.graphviz; charset=utf-8"
	default:
		http.NotFound(w, r)
		return
	}
	resp, err := s.service.GetArtifact(r.Context(), schema.GetArtifactRequest{ID: id, Kind: kind})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resp.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, resp.Content)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id schema.SessionID) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.WithSession(r.Context(), id)
	resp, err := s.service.GetSession(r.Context(), schema.GetSessionRequest{ID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	// Subscribe before writing the snapshot so no event falls in between.
	ch, unsubscribe, seq := s.hub.Subscribe(id)
	defer unsubscribe()

	snapshot := resp.Session
	_ = writeSSEvent(w, StreamEvent{
		Type:      StreamSnapshot,
		Snapshot:  &snapshot,
		Timestamp: time.Now(),
	})
	flusher.Flush()

	replayCount := 0
	if lastID > 0 {
		for _, event := range s.hub.Replay(id, lastID) {
			if event.Seq > seq {
				break
			}
			_ = writeSSEvent(w, event)
			replayCount++
		}
		flusher.Flush()
	}

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount)
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				log.Info("http stream ended")
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) requireSession(next func(http.ResponseWriter, *http.Request, schema.SessionID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logx.Ctx(r.Context()).With("remote", clientIP(r))
		token := s.sessionToken(r)
		if token == "" {
			log.Debug("http session missing")
			writeError(w, http.StatusNotFound, schema.ErrSessionNotFound)
			return
		}
		entry, ok := s.sessions.get(token)
		if !ok {
			log.Warn("http session invalid")
			writeError(w, http.StatusNotFound, schema.ErrSessionNotFound)
			return
		}
		log = log.With("session", entry.id)
		ctx := logx.ContextWithSessionLogger(r.Context(), log, entry.id)
		ctx = withSessionContext(ctx, entry)
		next(w, r.WithContext(ctx), entry.id)
	}
}

type sessionContextKey struct{}

func withSessionContext(ctx context.Context, sess session) context.Context {
	if ctx == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// sessionContext detaches long engine calls from the request: the returned
// context lives as long as the cookie session and keeps the request logger.
func sessionContext(ctx context.Context) context.Context {
	if ctx == nil {
		return nil
	}
	sess, ok := ctx.Value(sessionContextKey{}).(session)
	if !ok || sess.ctx == nil {
		return ctx
	}
	logger := pslog.Ctx(ctx)
	return logx.CopyContextFields(pslog.ContextWithLogger(sess.ctx, logger), ctx)
}

func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) lookupSession(r *http.Request) schema.SessionID {
	if s == nil || r == nil {
		return ""
	}
	token := s.sessionToken(r)
	if token == "" {
		return ""
	}
	entry, ok := s.sessions.peek(token)
	if !ok {
		return ""
	}
	return entry.id
}

func (s *Server) cookiePath() string {
	if s.basePath == "" {
		return "/"
	}
	return s.basePath + "/"
}

// statusForError maps service sentinels onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, schema.ErrSessionNotFound),
		errors.Is(err, schema.ErrExampleNotFound),
		errors.Is(err, schema.ErrNoArtifact):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidSession),
		errors.Is(err, schema.ErrInvalidSpeed),
		errors.Is(err, schema.ErrInvalidAction),
		errors.Is(err, schema.ErrEmptySource),
		errors.Is(err, schema.ErrNoSimulation):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err)
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(r.Body, target)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
