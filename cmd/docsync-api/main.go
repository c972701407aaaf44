package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/propforge/docsync/internal/audit"
	"github.com/propforge/docsync/internal/auth"
	"github.com/propforge/docsync/internal/config"
	"github.com/propforge/docsync/internal/database"
	"github.com/propforge/docsync/internal/docsync"
	"github.com/propforge/docsync/internal/logging"
	"github.com/propforge/docsync/internal/provider"
	"github.com/propforge/docsync/internal/server"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docsync-api",
		Short: "Document cloud synchronization service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().Int("queue-debounce-seconds", defaults.GetInt("queue.debounce_seconds"), "Sync queue debounce window in seconds")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "queue.debounce_seconds", "queue-debounce-seconds")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "docsync-auth",
		Audience:      "docsync-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	m365Tokens := provider.StaticTokenSource(appConfig.M365Token)
	googleTokens := provider.StaticTokenSource(appConfig.GoogleToken)

	oneDrive, err := provider.NewGraphClient(provider.GraphClientConfig{
		ProviderName: docsync.ProviderOneDrive.String(),
		BaseURL:      appConfig.GraphBaseURL,
		Tokens:       m365Tokens,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	sharePoint, err := provider.NewGraphClient(provider.GraphClientConfig{
		ProviderName: docsync.ProviderSharePoint.String(),
		BaseURL:      appConfig.GraphBaseURL,
		Tokens:       m365Tokens,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	googleDrive, err := provider.NewDriveClient(provider.DriveClientConfig{
		BaseURL:   appConfig.DriveBaseURL,
		UploadURL: appConfig.DriveUploadBaseURL,
		Tokens:    googleTokens,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	auditRecorder, err := audit.NewRecorder(audit.RecorderConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: docsync.NewUUIDProvider(),
	})
	if err != nil {
		return err
	}

	events := server.NewStatusDispatcher()

	syncService, err := docsync.NewService(docsync.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: docsync.NewUUIDProvider(),
		Providers:  provider.NewRegistry(oneDrive, sharePoint, googleDrive),
		Audit:      auditRecorder,
		Events:     events,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	queue, err := docsync.NewQueue(docsync.QueueConfig{
		Processor: syncService,
		Debounce:  time.Duration(appConfig.QueueDebounceSeconds) * time.Second,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenValidator: tokenManager,
		SyncService:    syncService,
		Queue:          queue,
		Events:         events,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		queue.Flush(shutdownCtx)
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
