package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Wyydra/yacall/internal/adapter/driven/auth/jwt"
	"github.com/Wyydra/yacall/internal/adapter/driven/gateway/ws"
	usermem "github.com/Wyydra/yacall/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/yacall/internal/adapter/driven/persistence/sqlite"
	presencemem "github.com/Wyydra/yacall/internal/adapter/driven/presence/memory"
	"github.com/Wyydra/yacall/internal/adapter/driven/presence/natskv"
	presenceredis "github.com/Wyydra/yacall/internal/adapter/driven/presence/redis"
	handler "github.com/Wyydra/yacall/internal/adapter/driving/http"
	"github.com/Wyydra/yacall/internal/config"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/core/service"
	"github.com/Wyydra/yacall/internal/logging"
	"github.com/Wyydra/yacall/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	l, logCloser := logging.Setup(cfg.Log)
	defer logCloser.Close()

	if err := run(cfg, l); err != nil {
		l.Error().Err(err).Msg("Server exited with error")
		logCloser.Close()
		os.Exit(1)
	}
	l.Info().Msg("Server exited")
}

func run(cfg *config.Config, l zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				l.Warn().Err(err).Msg("Error releasing resource")
			}
		}
	}()

	users, err := openUsers(cfg.Users, &closers)
	if err != nil {
		return err
	}
	store, err := openOnlineSet(ctx, cfg.Presence, &closers, l)
	if err != nil {
		return err
	}

	tokens, err := jwt.NewTokens(jwt.Config{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		return err
	}

	hub := ws.NewHub()
	registry := service.NewRegistry()
	presence := service.NewPresenceService(store, service.PresenceConfig{
		SetName:         cfg.Presence.SetName,
		OpTimeout:       cfg.Presence.OpTimeout,
		MaxRetries:      cfg.Presence.MaxRetries,
		InitialInterval: cfg.Presence.InitialInterval,
	})
	ledger := service.NewCallLedger(cfg.Signaling.RingTimeout, nil)
	callService := service.NewCallService(registry, hub, ledger, service.CallConfig{
		NotifyOffline: cfg.Signaling.NotifyOffline,
	})
	sessionService := service.NewSessionService(
		jwt.NewVerifier(tokens, cfg.Auth.AllowRawID),
		users,
		registry,
		hub,
		presence,
		ledger,
	)
	userService := service.NewUserService(users, tokens)

	opts := handler.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		SendBuffer:      cfg.WebSocket.SendBuffer,
		MaxMessageSize:  cfg.WebSocket.MaxMessageSize,
		WriteTimeout:    cfg.WebSocket.WriteTimeout,
		PongTimeout:     cfg.WebSocket.PongTimeout,
		CheckOrigin:     cfg.WebSocket.CheckOrigin,
		CookieSecure:    cfg.Auth.CookieSecure,
		AccessTTL:       cfg.Auth.AccessTTL,
		RefreshTTL:      cfg.Auth.RefreshTTL,
	}
	if cfg.Server.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.Register(reg)
		opts.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	h := handler.NewHandler(sessionService, callService, userService, opts)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: h.NewRouter(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Info().Str("addr", cfg.Server.Address).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		hub.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Error().Err(err).Msg("Server forced to shutdown")
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})

	return g.Wait()
}

func openUsers(cfg config.Users, closers *[]io.Closer) (port.UserRepository, error) {
	switch cfg.Driver {
	case "memory":
		return usermem.NewUserRepository(), nil
	default:
		repo, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, repo)
		return repo, nil
	}
}

func openOnlineSet(ctx context.Context, cfg config.Presence, closers *[]io.Closer, l zerolog.Logger) (port.OnlineSetStore, error) {
	switch cfg.Driver {
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		*closers = append(*closers, rdb)
		store := presenceredis.NewStore(rdb, cfg.Redis.KeyPrefix)
		if err := store.Ping(ctx); err != nil {
			l.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis not reachable yet")
		}
		return store, nil
	case "nats":
		opts := []nats.Option{nats.Name("yacall")}
		if cfg.NATS.User != "" {
			opts = append(opts, nats.UserInfo(cfg.NATS.User, cfg.NATS.Password))
		}
		nc, err := nats.Connect(cfg.NATS.URL, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "connect nats %s", cfg.NATS.URL)
		}
		*closers = append(*closers, closerFunc(func() error {
			return nc.Drain()
		}))
		storage := jetstream.MemoryStorage
		if cfg.NATS.FileStorage {
			storage = jetstream.FileStorage
		}
		return natskv.NewStore(nc, cfg.NATS.BucketPrefix, storage)
	default:
		return presencemem.NewStore(), nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
