// Package authfacade is the read-mostly surface the user interface binds to.
// It turns controller snapshots into Views and fans them out to subscribers.
package authfacade

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/tripauth/internal/session"
)

// View is what the interface renders.
type View struct {
	User             *session.AuthUser
	IsAuthenticated  bool
	IsLoading        bool
	AuthReady        bool
	Error            error
	SessionExpiresAt time.Time
}

type subscription struct {
	updates chan View
}

// Facade wraps one controller.
type Facade struct {
	controller *session.Controller
	logger     *zap.Logger

	initializeOnce sync.Once

	mutex            sync.Mutex
	subscriptions    map[uint64]*subscription
	nextSubscription uint64
	removeListener   func()
	closed           bool
}

// New binds a facade to controller.
func New(controller *session.Controller, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	facade := &Facade{
		controller:    controller,
		logger:        logger,
		subscriptions: make(map[uint64]*subscription),
	}
	facade.removeListener = controller.OnChange(facade.broadcast)
	return facade
}

// Snapshot returns the current View.
func (facade *Facade) Snapshot() View {
	return viewFrom(facade.controller.Snapshot())
}

// Initialize restores any persisted session. Only the first call does work;
// concurrent callers wait for it.
func (facade *Facade) Initialize(ctx context.Context) {
	facade.initializeOnce.Do(func() {
		user, restored, err := facade.controller.Restore(ctx)
		switch {
		case err != nil:
			facade.logger.Warn("session restore failed", zap.String("code", "authfacade.restore_failed"), zap.Error(err))
		case restored:
			facade.logger.Info("session restored", zap.String("user_id", user.ID))
		default:
			facade.logger.Debug("no session to restore")
		}
	})
}

// SignIn delegates to the controller.
func (facade *Facade) SignIn(ctx context.Context, credentials session.Credentials) (session.AuthUser, error) {
	return facade.controller.SignIn(ctx, credentials)
}

// SignUp delegates to the controller.
func (facade *Facade) SignUp(ctx context.Context, registration session.Registration) (session.AuthUser, error) {
	return facade.controller.SignUp(ctx, registration)
}

// Refresh delegates to the controller.
func (facade *Facade) Refresh(ctx context.Context) (session.AuthUser, error) {
	return facade.controller.Refresh(ctx)
}

// SignOut delegates to the controller.
func (facade *Facade) SignOut(ctx context.Context) {
	facade.controller.SignOut(ctx)
}

// HasPermission delegates to the controller.
func (facade *Facade) HasPermission(required session.Requirement) bool {
	return facade.controller.HasPermission(required)
}

// Subscribe returns a channel that always holds the most recent View. Slow
// readers skip intermediate Views. The current View is delivered immediately.
// cancel closes the channel.
func (facade *Facade) Subscribe() (<-chan View, func()) {
	updates := make(chan View, 1)
	facade.mutex.Lock()
	if facade.closed {
		facade.mutex.Unlock()
		close(updates)
		return updates, func() {}
	}
	facade.nextSubscription++
	subscriptionID := facade.nextSubscription
	entry := &subscription{updates: updates}
	facade.subscriptions[subscriptionID] = entry
	deliverLatest(entry, viewFrom(facade.controller.Snapshot()))
	facade.mutex.Unlock()

	var cancelOnce sync.Once
	return updates, func() {
		cancelOnce.Do(func() {
			facade.mutex.Lock()
			defer facade.mutex.Unlock()
			if _, ok := facade.subscriptions[subscriptionID]; ok {
				delete(facade.subscriptions, subscriptionID)
				close(updates)
			}
		})
	}
}

// Close detaches from the controller and closes every subscription.
func (facade *Facade) Close() {
	facade.removeListener()
	facade.mutex.Lock()
	defer facade.mutex.Unlock()
	facade.closed = true
	for subscriptionID, entry := range facade.subscriptions {
		delete(facade.subscriptions, subscriptionID)
		close(entry.updates)
	}
}

// broadcast reads the snapshot under the facade lock so subscribers never
// receive Views out of order.
func (facade *Facade) broadcast() {
	facade.mutex.Lock()
	defer facade.mutex.Unlock()
	if len(facade.subscriptions) == 0 {
		return
	}
	view := viewFrom(facade.controller.Snapshot())
	for _, entry := range facade.subscriptions {
		deliverLatest(entry, view)
	}
}

func deliverLatest(entry *subscription, view View) {
	select {
	case entry.updates <- view:
		return
	default:
	}
	select {
	case <-entry.updates:
	default:
	}
	select {
	case entry.updates <- view:
	default:
	}
}

func viewFrom(snapshot session.Snapshot) View {
	view := View{
		IsAuthenticated: snapshot.State.IsLive(),
		IsLoading:       snapshot.State == session.StateAuthenticating,
		AuthReady:       snapshot.Ready,
		Error:           snapshot.Err,
	}
	if snapshot.HasUser {
		user := snapshot.User
		view.User = &user
		view.SessionExpiresAt = snapshot.ExpiresAt
	}
	return view
}
