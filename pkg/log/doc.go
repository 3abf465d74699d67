/*
Package log provides structured logging for the transaction engine using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all engine packages
  - Thread-safe concurrent writes

Configuration:
  - Level: filter messages below threshold (debug/info/warn/error)
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: tag logs with the subsystem name ("transaction", "fsm", "solver")

# Usage

Initializing the Logger:

	import "github.com/pkgtx/corepm/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component Loggers:

	txLog := log.WithComponent("transaction")
	txLog.Info().Uint32("tid", tid).Msg("transaction started")

	fsmLog := log.WithComponent("fsm")
	fsmLog.Debug().Str("stage", "PROCESS").Str("path", path).Msg("writing file")

# Log Output

JSON Format (production):

	{"level":"info","component":"transaction","tid":1690000000,"time":"2026-07-31T10:30:00Z","message":"transaction started"}

Console Format (development):

	2026-07-31T10:30:00Z INF transaction started component=transaction tid=1690000000

# Best Practices

Do:
  - use Info level for production
  - use structured fields for queryable data
  - create component-specific loggers via WithComponent
  - log errors with .Err() for stack traces

Don't:
  - log sensitive data (stored credentials, digests from untrusted headers)
  - use Debug level in production
  - concatenate strings into the message (use .Str, .Int)
*/
package log
