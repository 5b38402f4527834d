package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"

	"github.com/tyemirov/tripauth/internal/credentials"
	"github.com/tyemirov/tripauth/internal/lockout"
)

var testEpoch = time.Unix(1700000000, 0).UTC()

type scheduledTask struct {
	due time.Time
	run func()
}

// manualScheduler fires tasks only from Advance, never from AfterFunc.
type manualScheduler struct {
	mutex  sync.Mutex
	now    time.Time
	nextID int
	tasks  map[int]scheduledTask
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{now: testEpoch, tasks: make(map[int]scheduledTask)}
}

func (scheduler *manualScheduler) Now() time.Time {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	return scheduler.now
}

func (scheduler *manualScheduler) AfterFunc(delay time.Duration, task func()) func() {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	scheduler.nextID++
	taskID := scheduler.nextID
	scheduler.tasks[taskID] = scheduledTask{due: scheduler.now.Add(delay), run: task}
	return func() {
		scheduler.mutex.Lock()
		defer scheduler.mutex.Unlock()
		delete(scheduler.tasks, taskID)
	}
}

// Advance moves time forward by delta, running due tasks in due order outside
// the scheduler lock.
func (scheduler *manualScheduler) Advance(delta time.Duration) {
	scheduler.mutex.Lock()
	target := scheduler.now.Add(delta)
	scheduler.mutex.Unlock()
	for {
		scheduler.mutex.Lock()
		dueID := 0
		var due scheduledTask
		for taskID, task := range scheduler.tasks {
			if task.due.After(target) {
				continue
			}
			if dueID == 0 || task.due.Before(due.due) || (task.due.Equal(due.due) && taskID < dueID) {
				dueID = taskID
				due = task
			}
		}
		if dueID == 0 {
			if target.After(scheduler.now) {
				scheduler.now = target
			}
			scheduler.mutex.Unlock()
			return
		}
		delete(scheduler.tasks, dueID)
		if due.due.After(scheduler.now) {
			scheduler.now = due.due
		}
		scheduler.mutex.Unlock()
		due.run()
	}
}

func (scheduler *manualScheduler) Pending() int {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	return len(scheduler.tasks)
}

type stubAuthority struct {
	mutex        sync.Mutex
	authenticate func(ctx context.Context, credentials Credentials) (Grant, error)
	register     func(ctx context.Context, registration Registration) (Grant, error)
	refresh      func(ctx context.Context, refreshToken string) (Grant, error)
	restore      func(ctx context.Context, pair credentials.TokenPair) (*Grant, error)

	authenticateCalls int
	registerCalls     int
	refreshCalls      int
	restoreCalls      int
	refreshTokensSeen []string
	revoked           []string
}

func (authority *stubAuthority) Authenticate(ctx context.Context, submitted Credentials) (Grant, error) {
	authority.mutex.Lock()
	authority.authenticateCalls++
	handler := authority.authenticate
	authority.mutex.Unlock()
	return handler(ctx, submitted)
}

func (authority *stubAuthority) Register(ctx context.Context, registration Registration) (Grant, error) {
	authority.mutex.Lock()
	authority.registerCalls++
	handler := authority.register
	authority.mutex.Unlock()
	return handler(ctx, registration)
}

func (authority *stubAuthority) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	authority.mutex.Lock()
	authority.refreshCalls++
	authority.refreshTokensSeen = append(authority.refreshTokensSeen, refreshToken)
	handler := authority.refresh
	authority.mutex.Unlock()
	return handler(ctx, refreshToken)
}

func (authority *stubAuthority) Restore(ctx context.Context, pair credentials.TokenPair) (*Grant, error) {
	authority.mutex.Lock()
	authority.restoreCalls++
	handler := authority.restore
	authority.mutex.Unlock()
	return handler(ctx, pair)
}

func (authority *stubAuthority) Revoke(_ context.Context, refreshToken string) error {
	authority.mutex.Lock()
	defer authority.mutex.Unlock()
	authority.revoked = append(authority.revoked, refreshToken)
	return nil
}

func (authority *stubAuthority) counts() (authenticate int, refresh int, restore int) {
	authority.mutex.Lock()
	defer authority.mutex.Unlock()
	return authority.authenticateCalls, authority.refreshCalls, authority.restoreCalls
}

func (authority *stubAuthority) revokedTokens() []string {
	authority.mutex.Lock()
	defer authority.mutex.Unlock()
	return append([]string(nil), authority.revoked...)
}

type recordingNotifier struct {
	mutex   sync.Mutex
	notices []Notice
}

func (notifier *recordingNotifier) Notify(notice Notice) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.notices = append(notifier.notices, notice)
}

func (notifier *recordingNotifier) kinds() []NoticeKind {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	kinds := make([]NoticeKind, 0, len(notifier.notices))
	for _, notice := range notifier.notices {
		kinds = append(kinds, notice.Kind)
	}
	return kinds
}

func (notifier *recordingNotifier) last() (Notice, bool) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	if len(notifier.notices) == 0 {
		return Notice{}, false
	}
	return notifier.notices[len(notifier.notices)-1], true
}

type controllerHarness struct {
	controller  *Controller
	scheduler   *manualScheduler
	authority   *stubAuthority
	notifier    *recordingNotifier
	metrics     *CounterMetrics
	tokens      *credentials.Store
	persistence *credentials.MemoryPersistence
	guard       *lockout.Guard
}

func newControllerHarness(t *testing.T, configuration Config) *controllerHarness {
	t.Helper()
	scheduler := newManualScheduler()
	persistence := credentials.NewMemoryPersistence()
	tokens := credentials.NewStore(persistence, zaptest.NewLogger(t))
	guard := lockout.NewGuard(lockout.DefaultConfig(), nil)
	authority := &stubAuthority{
		authenticate: func(context.Context, Credentials) (Grant, error) { return Grant{}, errTestRejected },
		register:     func(context.Context, Registration) (Grant, error) { return Grant{}, errTestRejected },
		refresh:      func(context.Context, string) (Grant, error) { return Grant{}, errTestRejected },
		restore:      func(context.Context, credentials.TokenPair) (*Grant, error) { return nil, nil },
	}
	notifier := &recordingNotifier{}
	metrics := NewCounterMetrics()
	controller, err := NewController(configuration, Dependencies{
		Authority: authority,
		Tokens:    tokens,
		Guard:     guard,
		Scheduler: scheduler,
		Notifier:  notifier,
		Metrics:   metrics,
		Logger:    zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return &controllerHarness{
		controller:  controller,
		scheduler:   scheduler,
		authority:   authority,
		notifier:    notifier,
		metrics:     metrics,
		tokens:      tokens,
		persistence: persistence,
		guard:       guard,
	}
}

type testError string

func (err testError) Error() string { return string(err) }

const errTestRejected = testError("stub.rejected")

func mintAccessToken(t *testing.T, subject string, expiresAt time.Time, extra jwt.MapClaims) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject, "exp": expiresAt.Unix()}
	for key, value := range extra {
		claims[key] = value
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("session-test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

const adaRecord = `{"id":"user-ada","email":"ada@example.com","first_name":"Ada","last_name":"Lovelace","tenant_id":"tenant-1","role":"member","permissions":["trips:read",{"resource":"trips","action":"share"}]}`

func grantFor(t *testing.T, expiresAt time.Time, refreshToken string) Grant {
	t.Helper()
	return Grant{
		AccessToken:  mintAccessToken(t, "user-ada", expiresAt, nil),
		RefreshToken: refreshToken,
		User:         UserRecord(adaRecord),
	}
}
