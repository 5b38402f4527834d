// Package session owns the client-side session lifecycle: sign-in, sign-up,
// restore, scheduled refresh, expiry polling and sign-out. Every transition is
// serialized by one mutex; collaborator calls happen outside it and their
// results are applied only if no newer transition has happened meanwhile.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tyemirov/tripauth/internal/credentials"
	"github.com/tyemirov/tripauth/internal/lockout"
)

const (
	// DefaultSessionWindow caps a session's lifetime between refreshes.
	DefaultSessionWindow = 30 * time.Minute
	// DefaultRefreshMargin is how long before expiry the refresh timer fires.
	DefaultRefreshMargin = 60 * time.Second
	// DefaultPollInterval is the expiry poll period.
	DefaultPollInterval = 60 * time.Second
	// DefaultTimerCallTimeout bounds authority calls started by timers.
	DefaultTimerCallTimeout = 30 * time.Second

	minimumRefreshDelay = 5 * time.Second
)

var errMissingAccessToken = errors.New("session.grant.missing_access_token")

// Config tunes session timing.
type Config struct {
	SessionWindow    time.Duration
	RefreshMargin    time.Duration
	PollInterval     time.Duration
	TimerCallTimeout time.Duration
}

// DefaultConfig returns the standard timing.
func DefaultConfig() Config {
	return Config{
		SessionWindow:    DefaultSessionWindow,
		RefreshMargin:    DefaultRefreshMargin,
		PollInterval:     DefaultPollInterval,
		TimerCallTimeout: DefaultTimerCallTimeout,
	}
}

func (configuration Config) withDefaults() Config {
	if configuration.SessionWindow <= 0 {
		configuration.SessionWindow = DefaultSessionWindow
	}
	if configuration.RefreshMargin < 0 {
		configuration.RefreshMargin = 0
	}
	if configuration.PollInterval <= 0 {
		configuration.PollInterval = DefaultPollInterval
	}
	if configuration.TimerCallTimeout <= 0 {
		configuration.TimerCallTimeout = DefaultTimerCallTimeout
	}
	return configuration
}

// Dependencies are the controller's collaborators. Authority, Tokens and Guard
// are required.
type Dependencies struct {
	Authority Authority
	Tokens    *credentials.Store
	Guard     *lockout.Guard
	Scheduler Scheduler
	Notifier  Notifier
	Metrics   MetricsRecorder
	Logger    *zap.Logger
}

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	State     State
	User      AuthUser
	HasUser   bool
	SessionID string
	ExpiresAt time.Time
	Ready     bool
	Restoring bool
	Err       error
}

type liveSession struct {
	id              string
	user            AuthUser
	expiresAt       time.Time
	refreshSequence uint64
	pollSequence    uint64
	cancelRefresh   func()
	cancelPoll      func()
}

func (current *liveSession) cancelTimers() {
	if current.cancelRefresh != nil {
		current.cancelRefresh()
		current.cancelRefresh = nil
	}
	if current.cancelPoll != nil {
		current.cancelPoll()
		current.cancelPoll = nil
	}
}

// Controller is the session state machine.
type Controller struct {
	mutex      sync.Mutex
	state      State
	session    *liveSession
	generation uint64
	ready      bool
	restoring  bool
	lastErr    error

	listeners      map[uint64]func()
	nextListenerID uint64
	refreshGroup   singleflight.Group

	config       Config
	authority    Authority
	tokens       *credentials.Store
	guard        *lockout.Guard
	scheduler    Scheduler
	notifier     Notifier
	metrics      MetricsRecorder
	logger       *zap.Logger
	newSessionID func() string
}

// NewController wires a controller. It starts Unauthenticated and not ready.
func NewController(configuration Config, dependencies Dependencies) (*Controller, error) {
	if dependencies.Authority == nil {
		return nil, errMissingAuthority
	}
	if dependencies.Tokens == nil {
		return nil, errMissingTokens
	}
	if dependencies.Guard == nil {
		return nil, errMissingGuard
	}
	scheduler := dependencies.Scheduler
	if scheduler == nil {
		scheduler = NewClockScheduler(nil)
	}
	notifier := dependencies.Notifier
	if notifier == nil {
		notifier = discardNotifier{}
	}
	metrics := dependencies.Metrics
	if metrics == nil {
		metrics = discardMetrics{}
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		state:        StateUnauthenticated,
		listeners:    make(map[uint64]func()),
		config:       configuration.withDefaults(),
		authority:    dependencies.Authority,
		tokens:       dependencies.Tokens,
		guard:        dependencies.Guard,
		scheduler:    scheduler,
		notifier:     notifier,
		metrics:      metrics,
		logger:       logger,
		newSessionID: uuid.NewString,
	}, nil
}

// OnChange registers listener to be called after every observable change.
// Listeners run outside the controller lock and should read Snapshot.
func (controller *Controller) OnChange(listener func()) (remove func()) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	controller.nextListenerID++
	listenerID := controller.nextListenerID
	controller.listeners[listenerID] = listener
	return func() {
		controller.mutex.Lock()
		defer controller.mutex.Unlock()
		delete(controller.listeners, listenerID)
	}
}

// Snapshot returns the current observable state.
func (controller *Controller) Snapshot() Snapshot {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	snapshot := Snapshot{
		State:     controller.state,
		Ready:     controller.ready,
		Restoring: controller.restoring,
		Err:       controller.lastErr,
	}
	if controller.session != nil {
		snapshot.User = controller.session.user.clone()
		snapshot.HasUser = true
		snapshot.SessionID = controller.session.id
		snapshot.ExpiresAt = controller.session.expiresAt
	}
	return snapshot
}

// State returns the current state.
func (controller *Controller) State() State {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	return controller.state
}

// User returns the signed-in user.
func (controller *Controller) User() (AuthUser, bool) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	if controller.session == nil {
		return AuthUser{}, false
	}
	return controller.session.user.clone(), true
}

// HasPermission evaluates required against the signed-in user. It is false
// without a live session.
func (controller *Controller) HasPermission(required Requirement) bool {
	controller.mutex.Lock()
	current := controller.session
	live := current != nil && controller.state.IsLive()
	var user AuthUser
	if live {
		user = current.user
	}
	controller.mutex.Unlock()
	if !live {
		return false
	}
	return HasPermission(user, required)
}

// SignIn authenticates credentials. A locked identifier fails fast without
// contacting the authority.
func (controller *Controller) SignIn(ctx context.Context, submitted Credentials) (AuthUser, error) {
	identifier := lockoutIdentifier(submitted.Actor, submitted.Tenant, submitted.Email)
	if err := controller.checkLockout(identifier); err != nil {
		return AuthUser{}, err
	}

	generation, previousRefreshToken := controller.beginAuthentication()
	controller.revokeQuietly(ctx, previousRefreshToken)

	grant, err := controller.authority.Authenticate(ctx, submitted)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, ErrAuthorityUnavailable) {
			controller.guard.RecordFailure(identifier)
		}
		return AuthUser{}, controller.failAuthentication(generation,
			fmt.Errorf("session.sign_in: %w: %w", ErrAuthenticationFailed, err),
			NoticeAuthenticationFailed, metricSignInFailure)
	}

	user, err := controller.establish(ctx, generation, grant, submitted.Tenant, "sign_in")
	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			return AuthUser{}, err
		}
		controller.revokeQuietly(ctx, grant.RefreshToken)
		return AuthUser{}, controller.failAuthentication(generation,
			fmt.Errorf("session.sign_in: %w: %w", ErrAuthenticationFailed, err),
			NoticeAuthenticationFailed, metricSignInFailure)
	}
	controller.guard.Reset(identifier)
	controller.metrics.Increment(metricSignInSuccess)
	return user, nil
}

// SignUp registers a new account and signs it in.
func (controller *Controller) SignUp(ctx context.Context, registration Registration) (AuthUser, error) {
	generation, previousRefreshToken := controller.beginAuthentication()
	controller.revokeQuietly(ctx, previousRefreshToken)

	grant, err := controller.authority.Register(ctx, registration)
	if err != nil {
		return AuthUser{}, controller.failAuthentication(generation,
			fmt.Errorf("session.sign_up: %w: %w", ErrRegistrationFailed, err),
			NoticeRegistrationFailed, metricSignUpFailure)
	}

	user, err := controller.establish(ctx, generation, grant, registration.Tenant, "sign_up")
	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			return AuthUser{}, err
		}
		controller.revokeQuietly(ctx, grant.RefreshToken)
		return AuthUser{}, controller.failAuthentication(generation,
			fmt.Errorf("session.sign_up: %w: %w", ErrRegistrationFailed, err),
			NoticeRegistrationFailed, metricSignUpFailure)
	}
	controller.metrics.Increment(metricSignUpSuccess)
	return user, nil
}

// Refresh renews the live session's credentials. Concurrent calls for the same
// session share one authority round trip.
func (controller *Controller) Refresh(ctx context.Context) (AuthUser, error) {
	controller.mutex.Lock()
	live := controller.session != nil && controller.state.IsLive()
	generation := controller.generation
	controller.mutex.Unlock()
	if !live {
		return AuthUser{}, fmt.Errorf("session.refresh: %w", ErrNoSession)
	}
	return controller.refreshShared(ctx, generation)
}

// SignOut ends the session locally and then revokes the refresh credential on
// a best-effort basis. Any in-flight sign-in or refresh is superseded.
func (controller *Controller) SignOut(ctx context.Context) {
	controller.mutex.Lock()
	controller.generation++
	hadSession := controller.session != nil
	sessionID := ""
	if hadSession {
		sessionID = controller.session.id
	}
	refreshToken := controller.teardownLocked()
	controller.lastErr = nil
	controller.mutex.Unlock()

	controller.metrics.Increment(metricSignOut)
	if hadSession {
		controller.logger.Info("session signed out", zap.String("session_id", sessionID))
		controller.notifier.Notify(Notice{Kind: NoticeSignedOut, Message: "Signed out"})
	}
	controller.publish()
	controller.revokeQuietly(ctx, refreshToken)
}

// Restore rehydrates a session from persisted credentials. The controller is
// ready once Restore returns, whatever the outcome.
func (controller *Controller) Restore(ctx context.Context) (AuthUser, bool, error) {
	controller.mutex.Lock()
	if controller.session != nil {
		user := controller.session.user.clone()
		controller.ready = true
		controller.mutex.Unlock()
		controller.publish()
		return user, true, nil
	}
	controller.generation++
	generation := controller.generation
	controller.state = StateAuthenticating
	controller.restoring = true
	controller.mutex.Unlock()
	controller.publish()
	defer controller.finishRestore(generation)

	if !controller.tokens.Load(ctx) {
		controller.metrics.Increment(metricRestoreEmpty)
		return AuthUser{}, false, nil
	}
	pair := controller.tokens.Pair()
	grant, err := controller.authority.Restore(ctx, pair)
	if err != nil {
		controller.metrics.Increment(metricRestoreFailure)
		controller.logger.Warn("session restore failed", zap.String("code", "session.restore_failed"), zap.Error(err))
		controller.discardStoredTokens(generation)
		return AuthUser{}, false, fmt.Errorf("session.restore: %w", err)
	}
	if grant == nil {
		controller.metrics.Increment(metricRestoreEmpty)
		controller.discardStoredTokens(generation)
		return AuthUser{}, false, nil
	}
	restored := *grant
	if restored.AccessToken == "" {
		restored.AccessToken = pair.AccessToken
	}
	if restored.RefreshToken == "" {
		restored.RefreshToken = pair.RefreshToken
	}
	user, err := controller.establish(ctx, generation, restored, "", "restore")
	if err != nil {
		if errors.Is(err, ErrSuperseded) {
			return AuthUser{}, false, err
		}
		controller.metrics.Increment(metricRestoreFailure)
		controller.logger.Warn("session restore rejected", zap.String("code", "session.restore_failed"), zap.Error(err))
		controller.discardStoredTokens(generation)
		controller.revokeQuietly(ctx, restored.RefreshToken)
		return AuthUser{}, false, fmt.Errorf("session.restore: %w", err)
	}
	controller.metrics.Increment(metricRestoreSuccess)
	return user, true, nil
}

func (controller *Controller) finishRestore(generation uint64) {
	controller.mutex.Lock()
	controller.ready = true
	controller.restoring = false
	if controller.generation == generation && controller.session == nil {
		controller.state = StateUnauthenticated
	}
	controller.mutex.Unlock()
	controller.publish()
}

func (controller *Controller) discardStoredTokens(generation uint64) {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	if controller.generation == generation {
		controller.tokens.ClearTokens()
	}
}

func (controller *Controller) checkLockout(identifier string) error {
	status := controller.guard.Status(identifier)
	if !status.IsLocked {
		return nil
	}
	err := &LockedOutError{Identifier: identifier, Remaining: status.Remaining}
	controller.mutex.Lock()
	controller.lastErr = err
	controller.mutex.Unlock()

	controller.metrics.Increment(metricSignInLocked)
	controller.logger.Info("sign-in locked out",
		zap.String("code", ErrLockedOut.Error()),
		zap.Duration("remaining", status.Remaining))
	controller.notifier.Notify(Notice{
		Kind:      NoticeLockedOut,
		Message:   fmt.Sprintf("Too many failed attempts. Try again in %s.", status.Remaining.Round(time.Second)),
		Err:       err,
		Remaining: status.Remaining,
	})
	controller.publish()
	return err
}

// beginAuthentication supersedes whatever is in flight and tears down any
// live session. It returns the new generation and the refresh credential of
// the session it replaced.
func (controller *Controller) beginAuthentication() (uint64, string) {
	controller.mutex.Lock()
	controller.generation++
	generation := controller.generation
	previousRefreshToken := controller.teardownLocked()
	controller.state = StateAuthenticating
	controller.lastErr = nil
	controller.mutex.Unlock()
	controller.publish()
	return generation, previousRefreshToken
}

func (controller *Controller) failAuthentication(generation uint64, err error, kind NoticeKind, metric string) error {
	controller.metrics.Increment(metric)
	controller.mutex.Lock()
	if controller.generation != generation {
		controller.mutex.Unlock()
		return fmt.Errorf("%w: %w", ErrSuperseded, err)
	}
	controller.state = StateUnauthenticated
	controller.lastErr = err
	controller.mutex.Unlock()

	controller.logger.Info("authentication failed", zap.String("code", string(kind)), zap.Error(err))
	controller.notifier.Notify(Notice{Kind: kind, Message: noticeMessage(kind), Err: err})
	controller.publish()
	return err
}

// establish applies a grant as a new live session if generation is current.
func (controller *Controller) establish(ctx context.Context, generation uint64, grant Grant, fallbackTenant string, source string) (AuthUser, error) {
	if strings.TrimSpace(grant.AccessToken) == "" {
		return AuthUser{}, fmt.Errorf("session.%s: %w", source, errMissingAccessToken)
	}
	user, err := controller.resolveUser(grant, fallbackTenant)
	if err != nil {
		return AuthUser{}, err
	}
	expiresAt := controller.expiryFor(grant.AccessToken, controller.scheduler.Now())

	controller.mutex.Lock()
	if controller.generation != generation {
		controller.mutex.Unlock()
		controller.discardGrant(ctx, grant)
		return AuthUser{}, fmt.Errorf("session.%s: %w", source, ErrSuperseded)
	}
	controller.tokens.SetTokens(grant.AccessToken, grant.RefreshToken)
	controller.session = &liveSession{
		id:        controller.newSessionID(),
		user:      user,
		expiresAt: expiresAt,
	}
	controller.state = StateAuthenticated
	controller.lastErr = nil
	controller.scheduleRefreshLocked(generation, false)
	controller.schedulePollLocked(generation)
	sessionID := controller.session.id
	controller.mutex.Unlock()

	controller.logger.Info("session established",
		zap.String("source", source),
		zap.String("session_id", sessionID),
		zap.String("user_id", user.ID),
		zap.Time("expires_at", expiresAt))
	if source != "restore" {
		controller.notifier.Notify(Notice{Kind: NoticeSignedIn, Message: "Signed in as " + user.DisplayName})
	}
	controller.publish()
	return user.clone(), nil
}

func (controller *Controller) resolveUser(grant Grant, fallbackTenant string) (AuthUser, error) {
	user, err := NormalizeUser(grant.User)
	if err != nil {
		return AuthUser{}, err
	}
	if user.TenantID == "" {
		if claims, claimsErr := credentials.DecodeClaims(grant.AccessToken); claimsErr == nil {
			user.TenantID = claims.TenantID
		}
	}
	if user.TenantID == "" {
		user.TenantID = strings.TrimSpace(fallbackTenant)
	}
	return user, nil
}

// expiryFor is the earlier of the session window and the token's own expiry.
func (controller *Controller) expiryFor(accessToken string, now time.Time) time.Time {
	expiresAt := now.Add(controller.config.SessionWindow)
	tokenExpiry, ok := credentials.DecodeExpiry(accessToken)
	if !ok {
		controller.metrics.Increment(metricMalformedToken)
		controller.logger.Debug("access token carries no readable expiry", zap.String("code", credentials.ErrMalformedToken.Error()))
		return expiresAt
	}
	if tokenExpiry.Before(expiresAt) {
		return tokenExpiry
	}
	return expiresAt
}

func (controller *Controller) refreshShared(ctx context.Context, generation uint64) (AuthUser, error) {
	result, err, _ := controller.refreshGroup.Do(strconv.FormatUint(generation, 10), func() (interface{}, error) {
		return controller.refreshGeneration(ctx, generation)
	})
	if err != nil {
		return AuthUser{}, err
	}
	return result.(AuthUser).clone(), nil
}

func (controller *Controller) refreshGeneration(ctx context.Context, generation uint64) (AuthUser, error) {
	controller.mutex.Lock()
	if controller.generation != generation || controller.session == nil {
		controller.mutex.Unlock()
		return AuthUser{}, fmt.Errorf("session.refresh: %w", ErrSuperseded)
	}
	refreshToken, _ := controller.tokens.RefreshToken()
	controller.state = StateRefreshing
	controller.mutex.Unlock()
	controller.publish()

	grant, err := controller.authority.Refresh(ctx, refreshToken)
	var user AuthUser
	hasUser := false
	if err == nil && strings.TrimSpace(grant.AccessToken) == "" {
		err = errMissingAccessToken
	}
	if err == nil && len(grant.User) > 0 {
		user, err = controller.resolveUser(grant, "")
		hasUser = err == nil
	}

	controller.mutex.Lock()
	current := controller.session
	if controller.generation != generation || current == nil {
		controller.mutex.Unlock()
		controller.metrics.Increment(metricRefreshStale)
		if err == nil {
			controller.discardGrant(ctx, grant)
		}
		return AuthUser{}, fmt.Errorf("session.refresh: %w", ErrSuperseded)
	}
	if err != nil {
		controller.generation++
		sessionID := current.id
		controller.teardownLocked()
		refreshErr := fmt.Errorf("session.refresh: %w: %w", ErrRefreshFailed, err)
		controller.lastErr = refreshErr
		controller.mutex.Unlock()

		controller.metrics.Increment(metricRefreshFailure)
		controller.logger.Warn("session refresh failed",
			zap.String("code", ErrRefreshFailed.Error()),
			zap.String("session_id", sessionID),
			zap.Error(err))
		controller.notifier.Notify(Notice{Kind: NoticeRefreshFailed, Message: noticeMessage(NoticeRefreshFailed), Err: refreshErr})
		controller.publish()
		return AuthUser{}, refreshErr
	}

	nextRefreshToken := grant.RefreshToken
	if nextRefreshToken == "" {
		nextRefreshToken = refreshToken
	}
	controller.tokens.SetTokens(grant.AccessToken, nextRefreshToken)
	if hasUser {
		if user.TenantID == "" {
			user.TenantID = current.user.TenantID
		}
		current.user = user
	}
	current.expiresAt = controller.expiryFor(grant.AccessToken, controller.scheduler.Now())
	controller.state = StateAuthenticated
	controller.scheduleRefreshLocked(generation, true)
	refreshed := current.user.clone()
	expiresAt := current.expiresAt
	controller.mutex.Unlock()

	controller.metrics.Increment(metricRefreshSuccess)
	controller.logger.Debug("session refreshed", zap.Time("expires_at", expiresAt))
	controller.publish()
	return refreshed, nil
}

// scheduleRefreshLocked replaces the refresh timer. A new session already
// inside the margin refreshes immediately. A credential that is still inside
// the margin right after a refresh is renewed at half its remaining lifetime,
// and never sooner than minimumRefreshDelay.
func (controller *Controller) scheduleRefreshLocked(generation uint64, afterRefresh bool) {
	current := controller.session
	if current.cancelRefresh != nil {
		current.cancelRefresh()
	}
	current.refreshSequence++
	sequence := current.refreshSequence
	remaining := current.expiresAt.Sub(controller.scheduler.Now())
	delay := remaining - controller.config.RefreshMargin
	if delay < 0 {
		delay = 0
		if afterRefresh {
			delay = remaining / 2
			if delay < minimumRefreshDelay {
				delay = minimumRefreshDelay
			}
		}
	}
	current.cancelRefresh = controller.scheduler.AfterFunc(delay, func() {
		controller.onRefreshTimer(generation, sequence)
	})
}

func (controller *Controller) schedulePollLocked(generation uint64) {
	current := controller.session
	if current.cancelPoll != nil {
		current.cancelPoll()
	}
	current.pollSequence++
	sequence := current.pollSequence
	current.cancelPoll = controller.scheduler.AfterFunc(controller.config.PollInterval, func() {
		controller.onPollTimer(generation, sequence)
	})
}

func (controller *Controller) onRefreshTimer(generation uint64, sequence uint64) {
	controller.mutex.Lock()
	current := controller.session
	valid := current != nil && controller.generation == generation && current.refreshSequence == sequence
	if valid {
		current.cancelRefresh = nil
	}
	controller.mutex.Unlock()
	if !valid {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), controller.config.TimerCallTimeout)
	defer cancel()
	if _, err := controller.refreshShared(ctx, generation); err != nil {
		controller.logger.Debug("scheduled refresh did not apply", zap.Error(err))
	}
}

func (controller *Controller) onPollTimer(generation uint64, sequence uint64) {
	controller.mutex.Lock()
	current := controller.session
	if current == nil || controller.generation != generation || current.pollSequence != sequence {
		controller.mutex.Unlock()
		return
	}
	current.cancelPoll = nil
	if controller.scheduler.Now().Before(current.expiresAt) {
		controller.schedulePollLocked(generation)
		controller.mutex.Unlock()
		return
	}
	controller.generation++
	sessionID := current.id
	refreshToken := controller.teardownLocked()
	expiredErr := fmt.Errorf("session.poll: %w", ErrSessionExpired)
	controller.lastErr = expiredErr
	controller.mutex.Unlock()

	controller.metrics.Increment(metricExpired)
	controller.logger.Info("session expired", zap.String("code", ErrSessionExpired.Error()), zap.String("session_id", sessionID))
	controller.notifier.Notify(Notice{Kind: NoticeSessionExpired, Message: noticeMessage(NoticeSessionExpired), Err: expiredErr})
	controller.publish()

	ctx, cancel := context.WithTimeout(context.Background(), controller.config.TimerCallTimeout)
	defer cancel()
	controller.revokeQuietly(ctx, refreshToken)
}

// teardownLocked cancels timers, drops the session and clears stored
// credentials. It returns the refresh credential that was stored.
func (controller *Controller) teardownLocked() string {
	if controller.session != nil {
		controller.session.cancelTimers()
		controller.session = nil
	}
	refreshToken, _ := controller.tokens.RefreshToken()
	controller.tokens.ClearTokens()
	controller.state = StateUnauthenticated
	return refreshToken
}

func (controller *Controller) discardGrant(ctx context.Context, grant Grant) {
	controller.metrics.Increment(metricSupersededGrant)
	controller.revokeQuietly(ctx, grant.RefreshToken)
}

func (controller *Controller) revokeQuietly(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := controller.authority.Revoke(ctx, refreshToken); err != nil {
		controller.logger.Warn("refresh credential revocation failed", zap.String("code", "session.revoke_failed"), zap.Error(err))
	}
}

func (controller *Controller) publish() {
	controller.mutex.Lock()
	listeners := make([]func(), 0, len(controller.listeners))
	for _, listener := range controller.listeners {
		listeners = append(listeners, listener)
	}
	controller.mutex.Unlock()
	for _, listener := range listeners {
		listener()
	}
}

// lockoutIdentifier keys lockout records by actor, tenant and email. Empty
// slots keep their position so distinct combinations never collide.
func lockoutIdentifier(actor string, tenant string, email string) string {
	return strings.Join([]string{strings.TrimSpace(actor), strings.TrimSpace(tenant), strings.TrimSpace(email)}, "|")
}

func noticeMessage(kind NoticeKind) string {
	switch kind {
	case NoticeAuthenticationFailed:
		return "Sign-in failed. Check your email and password."
	case NoticeRegistrationFailed:
		return "Registration failed."
	case NoticeRefreshFailed:
		return "Your session could not be renewed. Please sign in again."
	case NoticeSessionExpired:
		return "Your session has expired. Please sign in again."
	default:
		return ""
	}
}
