package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Realtime endpoint of the job-board backend (websocket URL).
	WSEndpoint string

	// REST backend for chat history and directory search.
	APIBaseURL string
	APIToken   string

	// Seed identity for this client instance: "user" or "company" plus the
	// subject id. Empty ClientID starts the runtime signed out.
	ClientType string
	ClientID   string

	// Subscription-feature flag for the user surface (gates job detail text).
	Subscribed bool

	// Route the chat surface lives at, and the route the client starts on.
	ChatRoute    string
	InitialRoute string

	// Local state persistence. DatabaseURL selects Postgres; otherwise
	// StatePath selects SQLite; otherwise state is held in memory.
	StatePath   string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	ReconnectDelay       time.Duration
	ReconnectMaxAttempts int
	ReconnectMultiplier  float64
	ReconnectMaxDelay    time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("JOBWIRE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("JOBWIRE_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("JOBWIRE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("JOBWIRE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("JOBWIRE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("JOBWIRE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("JOBWIRE_HTTP_MAX_HEADER_BYTES", 1<<20),

		WSEndpoint: EnvString("JOBWIRE_WS_ENDPOINT", "ws://127.0.0.1:4001/ws"),

		APIBaseURL: EnvString("JOBWIRE_API_BASE_URL", "http://127.0.0.1:4000"),
		APIToken:   EnvString("JOBWIRE_API_TOKEN", ""),

		ClientType: EnvString("JOBWIRE_CLIENT_TYPE", "user"),
		ClientID:   EnvString("JOBWIRE_CLIENT_ID", ""),

		Subscribed: EnvBool("JOBWIRE_SUBSCRIBED", false),

		ChatRoute:    EnvString("JOBWIRE_CHAT_ROUTE", "/chat"),
		InitialRoute: EnvString("JOBWIRE_INITIAL_ROUTE", "/"),

		StatePath:   EnvString("JOBWIRE_STATE_PATH", ""),
		DatabaseURL: EnvString("JOBWIRE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("JOBWIRE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("JOBWIRE_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("JOBWIRE_READINESS_REQUIRE_DB", false),

		ReconnectDelay:       EnvDuration("JOBWIRE_RECONNECT_DELAY", 2*time.Second),
		ReconnectMaxAttempts: EnvInt("JOBWIRE_RECONNECT_MAX_ATTEMPTS", 5),
		ReconnectMultiplier:  EnvFloat("JOBWIRE_RECONNECT_MULTIPLIER", 1),
		ReconnectMaxDelay:    EnvDuration("JOBWIRE_RECONNECT_MAX_DELAY", 30*time.Second),
	}
}
