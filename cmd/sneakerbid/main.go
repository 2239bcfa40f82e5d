package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/jensholdgaard/sneakerbid/internal/announce"
	"github.com/jensholdgaard/sneakerbid/internal/api"
	"github.com/jensholdgaard/sneakerbid/internal/auction"
	"github.com/jensholdgaard/sneakerbid/internal/broadcast"
	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/config"
	"github.com/jensholdgaard/sneakerbid/internal/event"
	"github.com/jensholdgaard/sneakerbid/internal/health"
	"github.com/jensholdgaard/sneakerbid/internal/identity"
	"github.com/jensholdgaard/sneakerbid/internal/leader"
	"github.com/jensholdgaard/sneakerbid/internal/media"
	"github.com/jensholdgaard/sneakerbid/internal/notification"
	"github.com/jensholdgaard/sneakerbid/internal/store"
	"github.com/jensholdgaard/sneakerbid/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/sneakerbid/internal/store/memory"
	_ "github.com/jensholdgaard/sneakerbid/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewLocalProvider(os.Stdout, telemetry.ParseLevel(cfg.Telemetry.LogLevel))
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()
	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	healthHandler := health.NewHandler(clk, health.Database(repos.Ping))
	hub := broadcast.NewHub(cfg.Broadcast.SubscriberBuffer, logger)

	g, gctx := errgroup.WithContext(ctx)

	// Without Redis events only reach clients connected to this replica.
	var publisher event.Publisher = hub
	if cfg.Broadcast.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Broadcast.RedisAddr,
			Password: cfg.Broadcast.RedisPassword,
			DB:       cfg.Broadcast.RedisDB,
		})
		defer redisClient.Close()

		relay := broadcast.NewRedisRelay(redisClient, cfg.Broadcast.RedisChannel, hub, logger)
		publisher = relay
		healthHandler.AddChecker(health.Redis(redisClient))
		g.Go(func() error { return relay.Run(gctx) })
	}

	notifications := notification.NewManager(repos.Notifications, logger, tp.TracerProvider)
	auctions, err := auction.NewManager(repos.Auctions, notifications, publisher, cfg.Auction,
		logger, tp.TracerProvider, tp.MeterProvider, clk)
	if err != nil {
		return fmt.Errorf("creating auction manager: %w", err)
	}
	closer, err := auction.NewCloser(repos.Auctions, notifications, publisher, cfg.Closer,
		logger, tp.TracerProvider, tp.MeterProvider, clk)
	if err != nil {
		return fmt.Errorf("creating auction closer: %w", err)
	}

	var uploader media.Uploader = media.Disabled{}
	if cfg.Media.CloudinaryURL != "" {
		cld, cldErr := media.NewCloudinary(cfg.Media.CloudinaryURL, cfg.Media.Folder)
		if cldErr != nil {
			return fmt.Errorf("creating media store: %w", cldErr)
		}
		uploader = cld
	}

	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer(cfg, api.Deps{
		Auctions:      auctions,
		Notifications: notifications,
		Hub:           hub,
		Tokens:        identity.NewTokens(cfg.Auth, clk),
		Uploader:      uploader,
		Health:        healthHandler,
		Logger:        logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end with the process context, not only on Shutdown.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", listenErr)
		}
		return nil
	})

	// Every replica serves HTTP; only the lease holder sweeps.
	g.Go(func() error {
		if cfg.LeaderElection.Enabled {
			logger.InfoContext(ctx, "leader election enabled, closer waits for leadership")
		}
		return leader.Gate(gctx, cfg.LeaderElection, logger, func(ctx context.Context) {
			if runErr := closer.Run(ctx); runErr != nil {
				logger.ErrorContext(ctx, "auction closer stopped with error", slog.Any("error", runErr))
			}
		})
	})

	if cfg.Discord.Enabled() {
		announcer, annErr := announce.New(cfg.Discord, hub, auctions, logger, tp.TracerProvider)
		if annErr != nil {
			return fmt.Errorf("creating announcer: %w", annErr)
		}
		if annErr = announcer.Start(ctx); annErr != nil {
			return fmt.Errorf("starting announcer: %w", annErr)
		}
		defer func() {
			if stopErr := announcer.Stop(); stopErr != nil {
				logger.Error("announcer shutdown error", slog.Any("error", stopErr))
			}
		}()
		g.Go(func() error {
			announcer.Run(gctx)
			return nil
		})
	}

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "sneakerbid is running", slog.String("version", version))

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		healthHandler.SetReady(false)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
