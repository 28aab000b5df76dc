package config

import "time"

// Token refresh call deadline. Bounded so a stuck refresh can never
// hold concurrent 401 callers indefinitely.
const RefreshTimeout = 15 * time.Second

// Access token lifetime minted by the dev server
const DevTokenTTL = time.Hour

// HTTP server timeouts (dev server)
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database connection pool settings (postgres state backend)
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// Debounce window for file-backend change notifications
const FileWatchDebounce = 100 * time.Millisecond
