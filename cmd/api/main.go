package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/BradenHooton/loginguard/internal/app"
	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/config"
	"github.com/BradenHooton/loginguard/internal/database"
	"github.com/BradenHooton/loginguard/internal/ledger"
	"github.com/BradenHooton/loginguard/internal/models"
)

var (
	migrateFlag = &cli.BoolFlag{
		Name:  "migrate",
		Usage: "Apply database migrations before serving",
	}
	operatorFlag = &cli.StringFlag{
		Name:     "operator",
		Usage:    "Operator id placed in the token",
		Required: true,
	}
	emailFlag = &cli.StringFlag{
		Name:  "email",
		Usage: "Operator email placed in the token",
	}
	roleFlag = &cli.StringFlag{
		Name:  "role",
		Usage: "Operator role (viewer or admin)",
		Value: models.RoleViewer,
	}
)

func newApp() *cli.App {
	cliApp := cli.NewApp()
	cliApp.Name = "loginguard"
	cliApp.Usage = "real-time login attack detection service"
	cliApp.Commands = []*cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API",
			Flags:  []cli.Flag{migrateFlag},
			Action: serve,
		},
		{
			Name:   "migrate",
			Usage:  "Apply database migrations and exit",
			Action: migrate,
		},
		{
			Name:   "token",
			Usage:  "Issue a dashboard bearer token",
			Flags:  []cli.Flag{operatorFlag, emailFlag, roleFlag},
			Action: issueToken,
		},
		{
			Name:   "verify-ledger",
			Usage:  "Check the hash chain of the file ledger",
			Action: verifyLedger,
		},
	}
	cliApp.DefaultCommand = "serve"
	return cliApp
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the JSON logger
func setup() (*config.Config, *slog.Logger, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		return nil, nil, err
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	return cfg, logger, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func serve(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			return err
		}
		defer db.Close()

		if c.Bool(migrateFlag.Name) {
			if err := db.Migrate(ctx); err != nil {
				logger.Error("failed to migrate database", slog.Any("error", err))
				return err
			}
		}
	}

	application, err := app.New(ctx, cfg, logger, app.Options{DB: db})
	if err != nil {
		logger.Error("failed to assemble service", slog.Any("error", err))
		return err
	}
	defer application.Close()

	// Start cleanup task
	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	defer janitorCancel()
	application.Start(janitorCtx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      application.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", slog.Any("error", err))
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	janitorCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

func migrate(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required to migrate")
	}

	db, err := database.NewConnection(c.Context, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		return err
	}
	defer db.Close()

	return db.Migrate(c.Context)
}

func issueToken(c *cli.Context) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	if !cfg.DashboardAuthEnabled() {
		return fmt.Errorf("DASHBOARD_JWT_SECRET is not set")
	}

	role := c.String(roleFlag.Name)
	if !models.ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}

	token, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry).
		GenerateToken(c.String(operatorFlag.Name), c.String(emailFlag.Name), role)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func verifyLedger(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.Ledger.Backend != config.LedgerBackendFile {
		return fmt.Errorf("ledger backend %q has no local chain to verify", cfg.Ledger.Backend)
	}

	l, err := ledger.OpenFileLedger(cfg.Ledger.Path, logger)
	if err != nil {
		return err
	}
	if err := l.Verify(); err != nil {
		logger.Error("ledger verification failed", slog.Any("error", err))
		return err
	}

	count, _ := l.AttackCount(c.Context)
	logger.Info("ledger verified", slog.Int64("entries", count))
	return nil
}
