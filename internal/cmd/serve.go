package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/selectmap/internal/buildings"
	"github.com/MeKo-Tech/selectmap/internal/config"
	"github.com/MeKo-Tech/selectmap/internal/server"
	"github.com/MeKo-Tech/selectmap/internal/session"
	"github.com/MeKo-Tech/selectmap/internal/vehicles"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the selection session API with live vehicle frames",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().Float64("frame-rate", 10, "Vehicle frames pushed per second on /api/stream (0 disables)")
	serveCmd.Flags().String("cors-origin", "*", "Access-Control-Allow-Origin value (empty disables CORS)")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	serveCmd.Flags().String("feed-url", "", "Vehicle feed URL returning {\"vehicles\": [...]} (empty disables polling)")
	serveCmd.Flags().Duration("poll-interval", 5*time.Second, "Vehicle feed poll interval")
	serveCmd.Flags().Duration("animation-duration", 4500*time.Millisecond, "Interpolation time between snapshots")
	serveCmd.Flags().Duration("fetch-timeout", 0, "Timeout per feed fetch (default: poll interval)")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("server.addr", "addr")
	mustBind("server.frame_rate", "frame-rate")
	mustBind("server.cors_origin", "cors-origin")
	mustBind("server.shutdown_timeout", "shutdown-timeout")

	mustBind("vehicles.feed_url", "feed-url")
	mustBind("vehicles.poll_interval", "poll-interval")
	mustBind("vehicles.animation_duration", "animation-duration")
	mustBind("vehicles.fetch_timeout", "fetch-timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ds, closeIndex := loadDataset(ctx, cfg.Dataset, logger)
	defer closeIndex()

	tracker := vehicles.NewTracker(cfg.Vehicles.AnimationDuration)
	sess := session.New(session.Config{
		Dataset: ds,
		Matcher: newMatcher(cfg, nil),
		Tracker: tracker,
		Camera:  initialCamera(cfg.Camera),
		MinArea: cfg.Selection.MinArea,
		Logger:  logger,
	})

	srvCfg := server.Config{
		Session:    sess,
		CORSOrigin: cfg.Server.CORSOrigin,
		Logger:     logger,
	}

	// srv is assigned before the scheduler starts ticking.
	var srv *server.Server
	var scheduler *vehicles.Scheduler
	if cfg.Vehicles.FeedURL != "" {
		scheduler, err = vehicles.NewScheduler(vehicles.SchedulerConfig{
			Feed:          vehicles.NewHTTPFeed(cfg.Vehicles.FeedURL, &http.Client{}),
			Tracker:       tracker,
			PollInterval:  cfg.Vehicles.PollInterval,
			FetchTimeout:  cfg.Vehicles.FetchTimeout,
			OnFrame:       func(now time.Time) { srv.PublishFrame(now) },
			FrameInterval: cfg.Server.FrameInterval(),
			Logger:        logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create vehicle scheduler: %w", err)
		}
		srvCfg.Poller = scheduler
	} else {
		logger.Warn("no vehicle feed configured, vehicle overlay stays empty")
	}

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv, err = server.New(srvCfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	if scheduler != nil {
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	logger.Info("selectmap server listening",
		"addr", cfg.Server.Addr,
		"buildings", ds.Len(),
		"indexed", ds.Indexed(),
		"feed_url", cfg.Vehicles.FeedURL,
		"frame_rate", cfg.Server.FrameRate,
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	srv.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func newMatcher(cfg config.Config, onProgress func(completed, total, failed int)) *buildings.Matcher {
	return buildings.NewMatcher(buildings.Config{
		MinHeight:         cfg.Match.MinHeight,
		MaxHeight:         cfg.Match.MaxHeight,
		MinArea:           cfg.Selection.MinArea,
		Workers:           cfg.Match.Workers,
		ParallelThreshold: cfg.Match.ParallelThreshold,
		OnProgress:        onProgress,
		Logger:            logger,
	})
}

func initialCamera(c config.CameraConfig) session.Camera {
	return session.Camera{
		Center:  c.Point(),
		Zoom:    c.Zoom,
		Pitch:   c.Pitch,
		Bearing: c.Bearing,
	}
}
