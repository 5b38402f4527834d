package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tyemirov/tripauth/internal/devauthority"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

const (
	configCodeMissingSigningKey = "config.missing_jwt_signing_key"
	configCodeInvalidAccessTTL  = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL = "config.invalid_refresh_ttl"
	configCodeInvalidPayload    = "config.invalid_payload_style"
	configCodeInvalidSeed       = "config.invalid_seed_user"
	shutdownGracePeriod         = 10 * time.Second
)

type authoritySettings struct {
	ListenAddr  string
	MetricsAddr string
	DatabaseURL string
	Authority   devauthority.Config
	SeedUser    *devauthority.NewUser
	BcryptCost  int
}

func newAuthorityCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "authority",
		Short: "Serve the development authority (email/password login, rotating refresh tokens)",
		RunE:  runAuthority,
	}
	command.Flags().String("listen_addr", ":8080", "HTTP listen address")
	command.Flags().String("metrics_addr", "", "Optional listen address for Prometheus metrics")
	command.Flags().String("jwt_signing_key", "", "HS256 signing secret for access tokens")
	command.Flags().String("jwt_issuer", "tripauth-dev", "Issuer claim for access tokens")
	command.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	command.Flags().Duration("refresh_ttl", 30*24*time.Hour, "Refresh token TTL")
	command.Flags().String("payload_style", "snake", "JSON field naming: snake or camel")
	command.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed CORS origins; \"*\" allows any, empty disables CORS")
	command.Flags().Duration("cors_max_age", 10*time.Minute, "How long browsers may cache a CORS preflight answer")
	command.Flags().String("database_url", "", "Database URL for refresh tokens (postgres:// or sqlite://; empty keeps them in memory)")
	command.Flags().Float64("rate_per_second", 5, "Sustained requests per second per client address")
	command.Flags().Int("rate_burst", 10, "Burst size per client address")
	command.Flags().Int("min_password_length", 8, "Minimum password length for registration")
	command.Flags().Int("bcrypt_cost", 0, "bcrypt cost; 0 uses the library default")
	command.Flags().String("seed_email", "", "Optional user created at startup")
	command.Flags().String("seed_password", "", "Password for the seed user")
	command.Flags().String("seed_tenant", "", "Tenant for the seed user")
	command.Flags().String("seed_role", "member", "Role for the seed user")
	command.Flags().StringSlice("seed_permissions", []string{}, "Permissions for the seed user")
	return command
}

func loadAuthoritySettings() (authoritySettings, error) {
	signingKey := viper.GetString("jwt_signing_key")
	if signingKey == "" {
		return authoritySettings{}, configError(configCodeMissingSigningKey, "jwt_signing_key must be provided")
	}
	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return authoritySettings{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}
	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= accessTTL {
		return authoritySettings{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than access_ttl")
	}
	payloadStyle := devauthority.PayloadStyle(strings.ToLower(strings.TrimSpace(viper.GetString("payload_style"))))
	if payloadStyle != devauthority.PayloadSnake && payloadStyle != devauthority.PayloadCamel {
		return authoritySettings{}, configError(configCodeInvalidPayload, "payload_style must be snake or camel")
	}

	settings := authoritySettings{
		ListenAddr:  viper.GetString("listen_addr"),
		MetricsAddr: viper.GetString("metrics_addr"),
		DatabaseURL: viper.GetString("database_url"),
		BcryptCost:  viper.GetInt("bcrypt_cost"),
		Authority: devauthority.Config{
			SigningKey:        []byte(signingKey),
			Issuer:            viper.GetString("jwt_issuer"),
			AccessTTL:         accessTTL,
			RefreshTTL:        refreshTTL,
			PayloadStyle:      payloadStyle,
			AllowedOrigins:    viper.GetStringSlice("cors_allowed_origins"),
			CORSMaxAge:        viper.GetDuration("cors_max_age"),
			RequestsPerSecond: viper.GetFloat64("rate_per_second"),
			Burst:             viper.GetInt("rate_burst"),
			MinPasswordLength: viper.GetInt("min_password_length"),
		},
	}
	if seedEmail := strings.TrimSpace(viper.GetString("seed_email")); seedEmail != "" {
		seedPassword := viper.GetString("seed_password")
		if seedPassword == "" {
			return authoritySettings{}, configError(configCodeInvalidSeed, "seed_password must be provided with seed_email")
		}
		settings.SeedUser = &devauthority.NewUser{
			Email:         seedEmail,
			Password:      seedPassword,
			TenantID:      viper.GetString("seed_tenant"),
			Role:          viper.GetString("seed_role"),
			Permissions:   viper.GetStringSlice("seed_permissions"),
			EmailVerified: true,
		}
	}
	return settings, nil
}

func runAuthority(command *cobra.Command, arguments []string) error {
	settings, err := loadAuthoritySettings()
	if err != nil {
		return err
	}
	logger, closeLogger, err := buildLogger()
	if err != nil {
		return err
	}
	defer closeLogger()

	parent := command.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	users := devauthority.NewInMemoryUsers(nil, settings.BcryptCost, settings.Authority.MinPasswordLength)
	if settings.SeedUser != nil {
		seeded, seedErr := users.Create(ctx, *settings.SeedUser)
		if seedErr != nil {
			return fmt.Errorf("%s: %w", configCodeInvalidSeed, seedErr)
		}
		logger.Info("seed user created", zap.String("user_id", seeded.ID), zap.String("tenant_id", seeded.TenantID))
	}

	var refreshStore devauthority.RefreshTokenStore
	if settings.DatabaseURL != "" {
		persistentStore, storeErr := devauthority.NewDatabaseRefreshTokenStore(ctx, settings.DatabaseURL, nil)
		if storeErr != nil {
			return storeErr
		}
		refreshStore = persistentStore
		logger.Info("using persistent refresh token store", zap.String("driver", persistentStore.Driver()))
	} else {
		refreshStore = devauthority.NewMemoryRefreshTokenStore(nil)
		logger.Info("using in-memory refresh token store")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	server, err := devauthority.NewServer(settings.Authority, devauthority.Dependencies{
		Users:         users,
		RefreshTokens: refreshStore,
		Logger:        logger,
		Registerer:    registry,
	})
	if err != nil {
		return err
	}
	gin.SetMode(gin.ReleaseMode)
	handler, err := server.Handler()
	if err != nil {
		return err
	}

	servers := []*http.Server{{
		Addr:              settings.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if settings.MetricsAddr != "" {
		servers = append(servers, newMetricsServer(settings.MetricsAddr, registry))
	}
	return serveUntilDone(ctx, logger, servers...)
}

func newMetricsServer(address string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serveUntilDone runs every server until ctx ends or one of them fails, then
// shuts all of them down.
func serveUntilDone(ctx context.Context, logger *zap.Logger, servers ...*http.Server) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, server := range servers {
		server := server
		group.Go(func() error {
			logger.Info("listening", zap.String("addr", server.Addr))
			if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen error on %s: %w", server.Addr, err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		graceCtx, graceCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer graceCancel()
		for _, server := range servers {
			if err := server.Shutdown(graceCtx); err != nil {
				logger.Error("server shutdown error", zap.String("addr", server.Addr), zap.Error(err))
			}
		}
		return nil
	})
	return group.Wait()
}
