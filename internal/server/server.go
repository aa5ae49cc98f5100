// Package server runs the shared state store as a network service: a Memory
// tree exposed over a websocket protocol and a small REST surface, journaled
// to Postgres when a database is configured.
package server

import (
	"context"
	"net/http"
	"time"

	"traitors-table/internal/config"
	"traitors-table/internal/media/vivox"
	"traitors-table/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Server struct {
	store   *store.Memory
	db      *gorm.DB
	hub     *wsHub
	journal *journal
	tokens  *vivox.Issuer
	cfg     config.Config
	log     zerolog.Logger
}

func New(conn *gorm.DB, cfg config.Config, log zerolog.Logger) *Server {
	s := &Server{
		store:   store.NewMemory(),
		db:      conn,
		hub:     newWSHub(),
		journal: newJournal(conn, log),
		tokens:  vivox.NewIssuer(cfg.VivoxSecret, cfg.VivoxIssuer, cfg.VivoxDomain),
		cfg:     cfg,
		log:     log.With().Str("component", "server").Logger(),
	}
	if conn != nil {
		s.store.OnCommit(s.journal.enqueue)
	}
	return s
}

// Store is the tree served to clients.
func (s *Server) Store() *store.Memory {
	return s.store
}

func (s *Server) Handler() http.Handler {
	registerValidators()
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.handleWebsocket)
	api := router.Group("/api")
	api.GET("/state/*path", s.handleStateGet)
	api.PUT("/state/*path", s.handleStatePut)
	api.PATCH("/state/*path", s.handleStatePatch)
	api.DELETE("/state/*path", s.handleStateDelete)
	api.POST("/media/token", s.handleMediaToken)
	api.GET("/invite/qr", s.handleInviteQR)
	return router
}

// RunJournal persists committed writes until ctx is done, then drains what is
// left. It returns at once when no database is configured.
func (s *Server) RunJournal(ctx context.Context) error {
	return s.journal.run(ctx)
}

// Close disconnects every websocket client and stops the store.
func (s *Server) Close() error {
	s.hub.closeAll()
	return s.store.Close()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/ws" {
			return
		}
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	}
}
