package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tyemirov/tripauth/internal/authfacade"
	"github.com/tyemirov/tripauth/internal/credentials"
	"github.com/tyemirov/tripauth/internal/lockout"
	"github.com/tyemirov/tripauth/internal/notify"
	"github.com/tyemirov/tripauth/internal/remote"
	"github.com/tyemirov/tripauth/internal/session"
)

const (
	configCodeMissingAuthorityURL  = "config.missing_authority_url"
	configCodeInvalidSessionWindow = "config.invalid_session_window"
	configCodeInvalidRefreshMargin = "config.invalid_refresh_margin"
	configCodeInvalidPollInterval  = "config.invalid_poll_interval"
	configCodeInvalidLockout       = "config.invalid_lockout"
	configCodeConflictingStores    = "config.conflicting_credential_stores"
	configCodeMissingEmail         = "config.missing_email"

	signOutTimeout = 5 * time.Second
	noticeBuffer   = 16
)

var errSessionEnded = errors.New("session.ended")

type sessionSettings struct {
	AuthorityURL  string
	DatabaseURL   string
	BoltPath      string
	Profile       string
	MetricsAddr   string
	SignOutOnExit bool
	Register      bool
	Credentials   session.Credentials
	Registration  session.Registration
	Session       session.Config
	Lockout       lockout.Config
	Output        io.Writer
}

func newSessionCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "session",
		Short: "Sign in against an authority and keep the session fresh until interrupted",
		RunE:  runSession,
	}
	command.Flags().String("authority_url", "", "Base URL of the authority, e.g. http://localhost:8080")
	command.Flags().String("email", "", "Account email; optional when a stored session can be restored")
	command.Flags().String("password", "", "Account password; prefer TRIPAUTH_PASSWORD")
	command.Flags().String("tenant", "", "Tenant identifier")
	command.Flags().String("actor", "", "Actor label used to scope lockout bookkeeping")
	command.Flags().Bool("register", false, "Create the account before signing in")
	command.Flags().String("first_name", "", "First name for registration")
	command.Flags().String("last_name", "", "Last name for registration")
	command.Flags().String("display_name", "", "Display name for registration")
	command.Flags().String("database_url", "", "Persist credentials in a database (postgres:// or sqlite://)")
	command.Flags().String("bolt_path", "", "Persist credentials in a bbolt file")
	command.Flags().String("profile", "default", "Credential slot inside the persistent store")
	command.Flags().Duration("session_window", session.DefaultSessionWindow, "Upper bound on session length")
	command.Flags().Duration("refresh_margin", session.DefaultRefreshMargin, "Refresh this long before expiry")
	command.Flags().Duration("poll_interval", session.DefaultPollInterval, "Expiry check interval")
	command.Flags().Int("lockout_threshold", lockout.DefaultThreshold, "Failed sign-ins before lockout")
	command.Flags().Duration("lockout_window", lockout.DefaultWindow, "Lockout duration")
	command.Flags().String("metrics_addr", "", "Optional listen address for Prometheus metrics")
	command.Flags().Bool("sign_out_on_exit", true, "Sign out and revoke the refresh token on exit")
	return command
}

func loadSessionSettings() (sessionSettings, error) {
	authorityURL := strings.TrimSpace(viper.GetString("authority_url"))
	if authorityURL == "" {
		return sessionSettings{}, configError(configCodeMissingAuthorityURL, "authority_url must be provided")
	}
	sessionWindow := viper.GetDuration("session_window")
	if sessionWindow <= 0 {
		return sessionSettings{}, configError(configCodeInvalidSessionWindow, "session_window must be greater than zero")
	}
	refreshMargin := viper.GetDuration("refresh_margin")
	if refreshMargin < 0 || refreshMargin >= sessionWindow {
		return sessionSettings{}, configError(configCodeInvalidRefreshMargin, "refresh_margin must be non-negative and shorter than session_window")
	}
	pollInterval := viper.GetDuration("poll_interval")
	if pollInterval <= 0 {
		return sessionSettings{}, configError(configCodeInvalidPollInterval, "poll_interval must be greater than zero")
	}
	lockoutThreshold := viper.GetInt("lockout_threshold")
	lockoutWindow := viper.GetDuration("lockout_window")
	if lockoutThreshold <= 0 || lockoutWindow <= 0 {
		return sessionSettings{}, configError(configCodeInvalidLockout, "lockout_threshold and lockout_window must be greater than zero")
	}
	databaseURL := strings.TrimSpace(viper.GetString("database_url"))
	boltPath := strings.TrimSpace(viper.GetString("bolt_path"))
	if databaseURL != "" && boltPath != "" {
		return sessionSettings{}, configError(configCodeConflictingStores, "database_url and bolt_path are mutually exclusive")
	}

	email := strings.TrimSpace(viper.GetString("email"))
	password := viper.GetString("password")
	tenant := strings.TrimSpace(viper.GetString("tenant"))
	actor := strings.TrimSpace(viper.GetString("actor"))
	return sessionSettings{
		AuthorityURL:  authorityURL,
		DatabaseURL:   databaseURL,
		BoltPath:      boltPath,
		Profile:       viper.GetString("profile"),
		MetricsAddr:   viper.GetString("metrics_addr"),
		SignOutOnExit: viper.GetBool("sign_out_on_exit"),
		Register:      viper.GetBool("register"),
		Credentials:   session.Credentials{Email: email, Password: password, Tenant: tenant, Actor: actor},
		Registration: session.Registration{
			Email:       email,
			Password:    password,
			Tenant:      tenant,
			FirstName:   viper.GetString("first_name"),
			LastName:    viper.GetString("last_name"),
			DisplayName: viper.GetString("display_name"),
			Actor:       actor,
		},
		Session: session.Config{
			SessionWindow:    sessionWindow,
			RefreshMargin:    refreshMargin,
			PollInterval:     pollInterval,
			TimerCallTimeout: session.DefaultTimerCallTimeout,
		},
		Lockout: lockout.Config{Threshold: lockoutThreshold, Window: lockoutWindow},
	}, nil
}

func runSession(command *cobra.Command, arguments []string) error {
	settings, err := loadSessionSettings()
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
	settings.Output = command.ErrOrStderr()
	return superviseSession(ctx, settings, logger)
}

func openCredentialPersistence(ctx context.Context, settings sessionSettings) (credentials.Persistence, func(), error) {
	switch {
	case settings.BoltPath != "":
		persistence, err := credentials.NewBoltPersistence(settings.BoltPath, settings.Profile)
		if err != nil {
			return nil, nil, err
		}
		return persistence, func() { _ = persistence.Close() }, nil
	case settings.DatabaseURL != "":
		persistence, err := credentials.NewDatabasePersistence(ctx, settings.DatabaseURL, settings.Profile)
		if err != nil {
			return nil, nil, err
		}
		return persistence, func() {}, nil
	default:
		return credentials.NewMemoryPersistence(), func() {}, nil
	}
}

// superviseSession restores or establishes a session, then logs every view
// until ctx ends or the session is lost.
func superviseSession(ctx context.Context, settings sessionSettings, logger *zap.Logger) error {
	persistence, closePersistence, err := openCredentialPersistence(ctx, settings)
	if err != nil {
		return err
	}
	defer closePersistence()

	client, err := remote.NewClient(settings.AuthorityURL, nil, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", configCodeMissingAuthorityURL, err)
	}
	registry := prometheus.NewRegistry()
	metrics, err := session.NewPrometheusMetrics(registry)
	if err != nil {
		return err
	}
	channelNotifier := notify.NewChannelNotifier(noticeBuffer)
	relayDone := make(chan struct{})
	relayStopped := make(chan struct{})
	go func() {
		defer close(relayStopped)
		relayNotices(channelNotifier.Notices(), settings.Output, relayDone)
	}()
	defer func() {
		close(relayDone)
		<-relayStopped
	}()

	controller, err := session.NewController(settings.Session, session.Dependencies{
		Authority: client,
		Tokens:    credentials.NewStore(persistence, logger),
		Guard:     lockout.NewGuard(settings.Lockout, nil),
		Notifier:  notify.Fanout{notify.NewLogNotifier(logger), channelNotifier},
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	facade := authfacade.New(controller, logger)
	defer facade.Close()

	facade.Initialize(ctx)
	if !facade.Snapshot().IsAuthenticated {
		if settings.Credentials.Email == "" {
			return configError(configCodeMissingEmail, "no stored session; email and password must be provided")
		}
		if settings.Register {
			_, err = facade.SignUp(ctx, settings.Registration)
		} else {
			_, err = facade.SignIn(ctx, settings.Credentials)
		}
		if err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return watchViews(groupCtx, facade, logger)
	})
	if settings.MetricsAddr != "" {
		group.Go(func() error {
			return serveUntilDone(groupCtx, logger, newMetricsServer(settings.MetricsAddr, registry))
		})
	}
	waitErr := group.Wait()

	if settings.SignOutOnExit && facade.Snapshot().IsAuthenticated {
		signOutCtx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
		facade.SignOut(signOutCtx)
		cancel()
	}
	return waitErr
}

func watchViews(ctx context.Context, facade *authfacade.Facade, logger *zap.Logger) error {
	updates, cancel := facade.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case view, ok := <-updates:
			if !ok {
				return nil
			}
			logView(logger, view)
			if !view.IsAuthenticated && !view.IsLoading {
				return errSessionEnded
			}
		}
	}
}

// relayNotices prints notices to output until done closes, then flushes what
// is still buffered.
func relayNotices(notices <-chan session.Notice, output io.Writer, done <-chan struct{}) {
	if output == nil {
		output = io.Discard
	}
	for {
		select {
		case notice := <-notices:
			writeNotice(output, notice)
		case <-done:
			for {
				select {
				case notice := <-notices:
					writeNotice(output, notice)
				default:
					return
				}
			}
		}
	}
}

func writeNotice(output io.Writer, notice session.Notice) {
	if notice.Remaining > 0 {
		fmt.Fprintf(output, "%s: %s (retry in %s)\n", notice.Kind, notice.Message, notice.Remaining.Round(time.Second))
		return
	}
	fmt.Fprintf(output, "%s: %s\n", notice.Kind, notice.Message)
}

func logView(logger *zap.Logger, view authfacade.View) {
	fields := []zap.Field{
		zap.String("code", "session.view"),
		zap.Bool("authenticated", view.IsAuthenticated),
		zap.Bool("loading", view.IsLoading),
	}
	if view.User != nil {
		fields = append(fields,
			zap.String("user_id", view.User.ID),
			zap.String("tenant_id", view.User.TenantID),
			zap.Time("expires_at", view.SessionExpiresAt))
	}
	if view.Error != nil {
		fields = append(fields, zap.Error(view.Error))
	}
	logger.Info("session view", fields...)
}
