package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	httpapi "github.com/immxrtalbeast/trailboard/internal/api/http"
	"github.com/immxrtalbeast/trailboard/internal/config"
	"github.com/immxrtalbeast/trailboard/internal/discovery"
	"github.com/immxrtalbeast/trailboard/internal/repository"
	"github.com/immxrtalbeast/trailboard/internal/service"
	"github.com/immxrtalbeast/trailboard/lib/logger"
	"github.com/immxrtalbeast/trailboard/lib/logger/sl"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := logger.Setup(cfg.Env, os.Stdout)

	if cfg.Env != logger.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	roomRepo := repository.NewInMemoryRoomRepository()
	roomService := service.NewRoomService(roomRepo, log, clockwork.NewRealClock(), cfg.Board.TrailLifetime)
	roomController := httpapi.NewRoomController(roomService, log)

	router := httpapi.SetupRouter(roomController, cfg.HTTP.AllowedOrigins)

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Discovery.Enabled {
		advertiser, err := discovery.Advertise(log, cfg.Discovery.Instance, portOf(cfg.HTTP.Address))
		if err != nil {
			log.Warn("mdns advertising disabled", sl.Err(err))
		} else {
			defer advertiser.Shutdown()
		}
	}

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", sl.Err(err))
	}
}

func portOf(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 8080
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return 8080
	}
	return p
}
