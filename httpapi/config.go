package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr            string
	SessionCookie   string
	SessionTTLHours int
	BasePath        string
	// HistorySize bounds the per-session SSE replay buffer.
	HistorySize int
	// DefaultCells is used by GET /api/viewport without a cells parameter.
	DefaultCells int
}
