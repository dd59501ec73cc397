package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dsonbill/BDDMP/internal/config"
	"github.com/dsonbill/BDDMP/internal/telemetry"
	"github.com/dsonbill/BDDMP/logging"
	loggingSinks "github.com/dsonbill/BDDMP/logging/sinks"
)

type loggingStack struct {
	router *logging.Router
}

// newLogging builds the structured event router from settings. fields are
// attached to every event.
func newLogging(settings config.LoggingConfig, fields map[string]any, console io.Writer, fallback *log.Logger) (*loggingStack, error) {
	severity, err := logging.ParseSeverity(settings.Level)
	if err != nil {
		return nil, fmt.Errorf("logging level: %w", err)
	}

	logConfig := logging.DefaultConfig()
	logConfig.EnabledSinks = settings.Sinks
	logConfig.MinimumSeverity = severity
	logConfig.Fields = fields
	if settings.BufferSize > 0 {
		logConfig.BufferSize = settings.BufferSize
	}
	if settings.FlushEvery > 0 {
		logConfig.JSON.FlushInterval = settings.FlushEvery
	}
	logConfig.JSON.FilePath = settings.JSONPath

	sinks := map[string]logging.Sink{}
	if logConfig.HasSink("console") {
		sinks["console"] = loggingSinks.NewConsole(console)
	}
	if logConfig.HasSink("json") {
		// The sink closes its writer, so the shared console is wrapped.
		out := io.Writer(struct{ io.Writer }{console})
		if logConfig.JSON.FilePath != "" {
			file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open json log: %w", err)
			}
			out = file
		}
		sinks["json"] = loggingSinks.NewJSON(out, logConfig.JSON.FlushInterval)
	}

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, fallback, sinks)
	if err != nil {
		for _, sink := range sinks {
			sink.Close(context.Background())
		}
		return nil, fmt.Errorf("failed to construct logging router: %w", err)
	}
	return &loggingStack{router: router}, nil
}

func (s *loggingStack) close(ctx context.Context, logger telemetry.Logger) {
	if err := s.router.Close(ctx); err != nil {
		logger.Printf("failed to close logging router: %v", err)
	}
}

func fallbackLogger(logger telemetry.Logger) *log.Logger {
	if provider, ok := logger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			return candidate
		}
	}
	return log.Default()
}
