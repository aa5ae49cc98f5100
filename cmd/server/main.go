package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traitors-table/internal/db"
	"traitors-table/internal/logging"
	"traitors-table/internal/server"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	cfg, log := logging.Boot(".env", os.Stdout)
	gin.SetMode(gin.ReleaseMode)

	var conn *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		conn, err = db.Open(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set, state will not survive a restart")
	}

	srv := server.New(conn, cfg, log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conn != nil {
		if err := srv.Restore(ctx); err != nil {
			log.Fatal().Err(err).Msg("state restore failed")
		}
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.RunJournal(ctx)
	})
	group.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("traitors-table store listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}
