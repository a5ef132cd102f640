package middleware

import (
	"context"
	"net/http"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
	"github.com/seralis/hermes/internal/logger"
	"github.com/seralis/hermes/internal/server"
)

const (
	UserIDKey = "user_id"
	LoggerKey = "logger"
)

const loggerCtxKey contextKey = LoggerKey

type ContextEnhancer struct {
	Server *server.Server
}

func NewContextEnhancer(srv *server.Server) *ContextEnhancer {
	return &ContextEnhancer{
		Server: srv,
	}
}

func (ce *ContextEnhancer) EnhanceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := GetRequestID(r)

		//enhance logger with context
		contextLogger := ce.Server.Logger.With().
			Str("request_id", requestID).
			Str("ip", r.RemoteAddr).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		if txn := newrelic.FromContext(r.Context()); txn != nil {
			contextLogger = logger.WithTraceContext(contextLogger, txn)
		}

		//set enhanced logger in context
		ctx := r.Context()
		ctx = context.WithValue(ctx, loggerCtxKey, &contextLogger)
		r = r.WithContext(ctx)

		next.ServeHTTP(w, r)
	})
}

// GetLogger retrieves the logger from the context.
func GetLogger(ctx context.Context) *zerolog.Logger {
	if logger, ok := ctx.Value(loggerCtxKey).(*zerolog.Logger); ok {
		return logger
	}
	logger := zerolog.Nop()
	return &logger
}
