package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wayfarer/database"
	"wayfarer/email"
	"wayfarer/handlers"
	"wayfarer/logger"
	"wayfarer/media"
	"wayfarer/middleware"
	"wayfarer/routes"
	"wayfarer/scheduler"
	"wayfarer/websocket"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const (
	sweepInterval   = 10 * time.Minute
	shutdownTimeout = 10 * time.Second
	jobTimeout      = 2 * time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the newsletter scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	defer shutdownDatabase()

	if os.Getenv("GIN_MODE") == "release" || cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	setupCtx, cancelSetup := commandContext(30 * time.Second)
	if err := database.EnsureIndexes(setupCtx); err != nil {
		logger.Log.WithError(err).Warn("Index creation failed")
	}
	if n, err := email.EnsureDefaultTemplates(setupCtx); err != nil {
		logger.Log.WithError(err).Warn("Seeding email templates failed")
	} else if n > 0 {
		logger.Log.WithField("count", n).Info("Seeded default email templates")
	}
	cancelSetup()

	if err := middleware.RegisterValidators(); err != nil {
		return err
	}
	if err := media.Init(cfg.CloudinaryURL); err != nil {
		logger.Log.WithError(err).Warn("Cloudinary disabled")
	}
	mailer := email.Init(cfg)
	handlers.SetPushKeys(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	handlers.InitGoogle(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(cfg.FrontendURL)
	go hub.Run(ctx)
	handlers.SetHub(hub)

	newsletter := email.NewNewsletter(mailer, nil, cfg.NewsletterBatchDelay)
	handlers.SetNewsletter(newsletter)

	jobs := scheduler.New(jobTimeout)
	if _, err := jobs.Add("weekly-newsletter", cfg.NewsletterCron, func(ctx context.Context) error {
		_, err := handlers.RunNewsletterExclusive(ctx, newsletter.RunWeekly)
		if errors.Is(err, handlers.ErrNewsletterBusy) {
			logger.Log.Warn("Weekly newsletter skipped, another send is running")
			return nil
		}
		return err
	}); err != nil {
		return err
	}
	jobs.Start()

	limiters := routes.NewLimiters(cfg)
	go sweepLimiters(ctx, limiters)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      routes.SetupRouter(cfg, hub, limiters),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.WithField("port", cfg.Port).WithField("env", cfg.Env).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Forced shutdown")
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Log.WithError(err).Warn("Scheduler did not stop in time")
	}
	logger.Log.Info("Server stopped")
	return nil
}

func sweepLimiters(ctx context.Context, limiters routes.Limiters) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiters.Sweep()
		}
	}
}

