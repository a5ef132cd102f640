package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/seralis/hermes/internal/config"
	loggerPkg "github.com/seralis/hermes/internal/logger"
	"github.com/seralis/hermes/internal/store"
)

type Server struct {
	Config        *config.Config
	Logger        *zerolog.Logger
	LoggerService *loggerPkg.LoggerService
	Store         *store.Store

	httpServer *http.Server
}

func NewServer(cfg *config.Config, logger *zerolog.Logger, ls *loggerPkg.LoggerService, st *store.Store) *Server {
	return &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: ls,
		Store:         st,
	}
}

func (s *Server) SetupHTTPServer(handler http.Handler) {
	s.httpServer = &http.Server{
		Addr:         ":" + s.Config.Server.Port,
		Handler:      handler,
		ReadTimeout:  time.Duration(s.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.Config.Server.IdleTimeout) * time.Second,
	}
}

func (s *Server) Start() error {
	s.Logger.Info().Str("port", s.Config.Server.Port).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
