package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sdsim/database"
	"sdsim/internal/carhandler"
	"sdsim/internal/config"
	httphandler "sdsim/internal/microservices/http-api/handler"
	"sdsim/internal/microservices/http-api/middleware"
	"sdsim/internal/microservices/http-api/service"
	"sdsim/internal/microservices/tcp"
	udp "sdsim/internal/microservices/udp-server"
	"sdsim/internal/microservices/websocket"
	"sdsim/internal/recorder"
	"sdsim/internal/sandbox"
	"sdsim/internal/sim"
	"sdsim/internal/sim/headless"
)

func run(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Engine and simulation loop
	world := headless.NewWorld(headless.Options{
		Vehicle:   profile.Vehicle,
		Camera:    profile.Camera,
		Loop:      profile.Track,
		Waypoints: profile.Waypoints,
		Quit:      stop,
		Logger:    logger,
	})
	queue := sim.NewWorkQueue(logger)
	loop := sim.NewLoop(world, queue, cfg.TickRate, logger)

	// Persistence, all optional
	var (
		cache *recorder.RedisProgressRepo
		store *recorder.SQLEpisodeStore
	)
	if cfg.RedisURL != "" {
		if cache, err = recorder.NewRedisProgressRepo(cfg.RedisURL, cfg.LatestTTL); err != nil {
			return err
		}
		logger.Info("latest_cache_enabled", "redis_url", cfg.RedisURL)
	}
	db, err := database.ConnectDB(cfg, logger)
	switch {
	case errors.Is(err, database.ErrStoreDisabled):
	case err != nil:
		cache.Close()
		return err
	default:
		store = recorder.NewSQLEpisodeStore(db)
		logger.Info("episode_store_enabled", "dialect", string(db.Dialect))
	}

	var rec *recorder.Recorder
	sandboxOpts := sandbox.Options{
		AutoStart:              cfg.AutoStart,
		SpawnCarsWithClients:   cfg.SpawnCarsWithClients,
		CreateCarWithoutClient: cfg.CreateCarWithoutClient,
		DataDir:                cfg.DataDir,
		Handler: carhandler.Options{
			LimitFPS:     cfg.LimitFPS,
			SteerToAngle: cfg.SteerToAngle,
			CTEThreshold: cfg.CTEThreshold,
		},
		Logger: logger,
	}
	if cache != nil || store != nil {
		rec = recorder.New(latestCache(cache), episodeStore(store), recorder.Options{Logger: logger})
		sandboxOpts.Recorder = rec
	}

	hub := websocket.NewHub(logger)
	publishers := sandbox.Publishers{hub}
	var relay *udp.Server
	if addr := cfg.RelayAddr(); addr != "" {
		if relay, err = udp.NewServer(addr, udp.WithLogger(logger)); err != nil {
			return err
		}
		publishers = append(publishers, relay)
	}
	sandboxOpts.Publisher = publishers
	sandboxSrv := sandbox.NewServer(world, loop, sandboxOpts)

	// Control listener
	var auth *tcp.TCPAuthService
	sessionOpts := []tcp.SessionOption{
		tcp.WithInboundLimit(cfg.InboundRateLimit, cfg.InboundBurst),
		tcp.WithWriteTimeout(cfg.WriteTimeout),
	}
	if cfg.AuthSecret != "" {
		auth = tcp.NewTCPAuthService(cfg.AuthSecret)
		sessionOpts = append(sessionOpts, tcp.WithAuth(auth))
	}
	tcpSrv := tcp.NewServer(cfg.ListenAddr(), sandboxSrv,
		tcp.WithLogger(logger),
		tcp.WithSessionOptions(sessionOpts...),
	)
	if err := tcpSrv.Bind(); err != nil {
		return err
	}

	var login service.AuthService
	if auth != nil && cfg.OperatorPasswordHash != "" {
		if login, err = service.NewAuthService(cfg.OperatorUsername, cfg.OperatorPasswordHash, auth, cfg.TokenTTL); err != nil {
			return err
		}
	}

	logger.Info("starting_sim_server",
		"tcp_addr", tcpSrv.ListenAddr().String(),
		"admin_addr", cfg.AdminAddr(),
		"relay_addr", cfg.RelayAddr(),
		"auth", auth != nil,
		"profile", cfg.ProfilePath,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return tcpSrv.Run(gctx) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if rec != nil {
		g.Go(func() error {
			rec.Run(gctx)
			return nil
		})
	}
	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}
	if addr := cfg.AdminAddr(); addr != "" {
		g.Go(func() error {
			return serveAdmin(gctx, addr, cfg, httphandler.RouterConfig{
				Sessions: service.NewSessionService(sandboxSrv, latestReader(cache), historyReader(store)),
				Sim:      service.NewSimService(sandboxSrv, world),
				Hub:      hub,
				Auth:     tokenValidator(auth),
				Login:    login,
				Logger:   logger,
			})
		})
	}

	err = g.Wait()
	if rec != nil {
		if cerr := rec.Close(); cerr != nil {
			logger.Warn("recorder_close_failed", "error", cerr)
		}
	} else {
		cache.Close()
		if store != nil {
			store.Close()
		}
	}
	if err != nil {
		logger.Error("server_error", "error", err.Error())
		return err
	}
	logger.Info("server_stopped_gracefully")
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.SimHost = hostFlag
	}
	if cmd.Flags().Changed("port") {
		cfg.SimPort = portFlag
	}
	if cmd.Flags().Changed("admin-port") {
		cfg.AdminPort = max(adminPortFlag, 0)
	}
	if cmd.Flags().Changed("relay-port") {
		cfg.RelayPort = relayPortFlag
	}
	if cmd.Flags().Changed("config") {
		cfg.ProfilePath = profileFlag
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func serveAdmin(ctx context.Context, addr string, cfg *config.Config, rc httphandler.RouterConfig) error {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httphandler.NewRouter(rc),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin api: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// The adapters below keep typed nil pointers out of the interfaces.

func latestCache(c *recorder.RedisProgressRepo) recorder.LatestCache {
	if c == nil {
		return nil
	}
	return c
}

func episodeStore(s *recorder.SQLEpisodeStore) recorder.EpisodeStore {
	if s == nil {
		return nil
	}
	return s
}

func latestReader(c *recorder.RedisProgressRepo) service.LatestReader {
	if c == nil {
		return nil
	}
	return c
}

func historyReader(s *recorder.SQLEpisodeStore) service.HistoryReader {
	if s == nil {
		return nil
	}
	return s
}

func tokenValidator(a *tcp.TCPAuthService) middleware.TokenValidator {
	if a == nil {
		return nil
	}
	return a
}
