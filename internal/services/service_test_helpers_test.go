package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/pkg/mail"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []mail.Email
	err  error
}

func (r *recordingDispatcher) Dispatch(_ context.Context, email mail.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, email)
	return nil
}

func (r *recordingDispatcher) last(t *testing.T) mail.Email {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent, "expected an email to be dispatched")
	return r.sent[len(r.sent)-1]
}

func (r *recordingDispatcher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type fixedClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type testServices struct {
	db       *gorm.DB
	auth     *AuthService
	users    *UserService
	roles    *RoleService
	audit    *AuditService
	sessions *auth.SessionService
	tokens   *auth.JWTService
	mailer   *recordingDispatcher
	clock    *fixedClock
}

func newTestServices(t *testing.T, opts ...AuthOption) *testServices {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	clock := &fixedClock{current: time.Now().UTC().Truncate(time.Second)}

	audit, err := NewAuditService(db)
	require.NoError(t, err)
	roles, err := NewRoleService(db, audit)
	require.NoError(t, err)
	users, err := NewUserService(db, roles, audit)
	require.NoError(t, err)

	tokens, err := auth.NewJWTService(auth.JWTConfig{
		Secret:         "test-secret-key-with-enough-entropy",
		Issuer:         "authcore-test",
		AccessTokenTTL: 15 * time.Minute,
		Clock:          clock.Now,
	})
	require.NoError(t, err)
	sessions, err := auth.NewSessionService(db, auth.SessionConfig{
		RefreshTokenTTL: 24 * time.Hour,
		Clock:           clock.Now,
	})
	require.NoError(t, err)
	codes, err := auth.NewVerificationStore(db, auth.VerificationConfig{Clock: clock.Now})
	require.NoError(t, err)

	mailer := &recordingDispatcher{}
	svc, err := NewAuthService(AuthDeps{
		DB:       db,
		Users:    users,
		Roles:    roles,
		Tokens:   tokens,
		Sessions: sessions,
		Codes:    codes,
		Mailer:   mailer,
		Audit:    audit,
	}, opts...)
	require.NoError(t, err)

	return &testServices{
		db:       db,
		auth:     svc,
		users:    users,
		roles:    roles,
		audit:    audit,
		sessions: sessions,
		tokens:   tokens,
		mailer:   mailer,
		clock:    clock,
	}
}

// registerAndActivate signs up a user, redeems the activation code and logs in.
func (s *testServices) registerAndActivate(t *testing.T, email, password string) *AuthResult {
	t.Helper()

	ctx := context.Background()
	_, err := s.auth.Register(ctx, RegisterInput{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     email,
		Password:  password,
	})
	require.NoError(t, err)
	require.NoError(t, s.auth.VerifyAccount(ctx, s.mailer.last(t).Code))

	result, err := s.auth.Authenticate(ctx, LoginInput{
		Email:        email,
		Password:     password,
		DeviceInfo:   "unit-test",
		IssueRefresh: true,
	})
	require.NoError(t, err)
	return result
}

func principalOf(result *AuthResult) auth.Principal {
	return auth.Principal{
		UserID: result.User.ID,
		Email:  result.User.Email,
		Roles:  result.User.RoleNames(),
	}
}
