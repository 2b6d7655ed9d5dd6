package observability

import (
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

// InitSentry configures error reporting for the account service. An empty DSN
// leaves reporting disabled, which is the expected state in development.
func InitSentry(dsn, environment string) error {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		// Auth traffic carries credentials and tokens; never attach
		// request payloads.
		SendDefaultPII: false,
	})
}

// FlushSentry drains buffered events, bounded so shutdown cannot hang on a
// slow ingest endpoint.
func FlushSentry() {
	sentry.Flush(sentryFlushTimeout)
}
