package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/movieclub/internal/auth"
	"github.com/MarcoPoloResearchLab/movieclub/internal/club"
	"github.com/MarcoPoloResearchLab/movieclub/internal/config"
	"github.com/MarcoPoloResearchLab/movieclub/internal/database"
	"github.com/MarcoPoloResearchLab/movieclub/internal/jobs"
	"github.com/MarcoPoloResearchLab/movieclub/internal/logging"
	"github.com/MarcoPoloResearchLab/movieclub/internal/server"
	"github.com/MarcoPoloResearchLab/movieclub/internal/tmdb"
	"github.com/MarcoPoloResearchLab/movieclub/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "movieclub-api",
		Short: "Movie club backend service",
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
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Postgres connection string")
	cmd.PersistentFlags().String("site-url", defaults.GetString("site.url"), "Public site URL used in magic links")
	cmd.PersistentFlags().String("cache-address", defaults.GetString("cache.address"), "Valkey address for the search cache")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "site.url", "site-url")
	bindFlag(cmd, "cache.address", "cache-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

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

	db, err := database.Open(database.Options{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	realtime := server.NewRealtimeDispatcher()
	idProvider := club.NewUUIDProvider()

	clubService, err := club.NewService(club.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Notifier:   realtime,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	mailer, err := newMailer(appConfig, logger)
	if err != nil {
		return err
	}

	passwordless, err := auth.NewPasswordlessService(auth.PasswordlessConfig{
		Database:   db,
		Identities: userService,
		Mailer:     mailer,
		SMS:        auth.LogSMSSender{Logger: logger.Named("sms")},
		SiteURL:    appConfig.SiteURL,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        auth.DefaultSessionIssuer,
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        auth.DefaultSessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	searchCache, closeCache, err := newSearchCache(appConfig)
	if err != nil {
		return err
	}
	defer closeCache()

	searchClient := tmdb.NewClient(tmdb.ClientConfig{
		APIKey:  appConfig.TMDBAPIKey,
		BaseURL: appConfig.TMDBBaseURL,
		Cache:   searchCache,
		Logger:  logger,
	})

	scheduler := jobs.NewScheduler(logger)
	if err := scheduler.AddJob(jobs.NewChallengeCleanupJob(passwordless, logger)); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		ClubService:      clubService,
		UserService:      userService,
		Passwordless:     passwordless,
		TokenIssuer:      tokenIssuer,
		SessionValidator: sessionValidator,
		SearchClient:     searchClient,
		Realtime:         realtime,
		Logger:           logger,
		AllowedOrigins:   appConfig.AllowedOrigins,
		CookieSecure:     appConfig.SessionCookieSecure,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
		)
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
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newMailer(appConfig config.AppConfig, logger *zap.Logger) (auth.MailSender, error) {
	if strings.TrimSpace(appConfig.SMTPHost) == "" {
		logger.Warn("smtp.host not set; magic links will be logged instead of mailed")
		return auth.LogMailer{Logger: logger.Named("mail")}, nil
	}
	return auth.NewSMTPMailer(auth.SMTPConfig{
		Host:     appConfig.SMTPHost,
		Port:     appConfig.SMTPPort,
		Username: appConfig.SMTPUsername,
		Password: appConfig.SMTPPassword,
		From:     appConfig.SMTPFrom,
	}, logger)
}

func newSearchCache(appConfig config.AppConfig) (tmdb.Cache, func(), error) {
	if strings.TrimSpace(appConfig.CacheAddress) == "" {
		return tmdb.NewMemoryCache(time.Now), func() {}, nil
	}
	client, err := tmdb.NewValkeyClient(appConfig.CacheAddress)
	if err != nil {
		return nil, nil, err
	}
	return tmdb.NewValkeyCache(client), client.Close, nil
}
