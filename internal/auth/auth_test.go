package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
	"lms-dashboard-go/internal/remote/memstore"
	"lms-dashboard-go/internal/services"
)

func testTokens() TokenService {
	return TokenService{
		Secret:     []byte("test-secret"),
		Issuer:     "lms-test",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		ResetTTL:   time.Hour,
	}
}

func newTestService(store remote.Store) (*Service, *LogMailer) {
	mailer := NewLogMailer(logger.NewNop())
	return NewService(store, testTokens(), mailer, logger.NewNop()), mailer
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	svcErr, ok := services.AsServiceError(err)
	require.True(t, ok, "expected ServiceError, got %v", err)
	return svcErr.Status
}

func TestSignUpAndSignIn(t *testing.T) {
	store := memstore.New().Unique(models.TableAuthUsers, "email")
	svc, _ := newTestService(store)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, " Tutor@Example.com ", "password123", ProfileFields{FullName: "Tia Tutor", Role: models.RoleTutor})
	require.NoError(t, err)
	assert.Equal(t, "tutor@example.com", session.User.Email)
	assert.Equal(t, models.RoleTutor, session.User.Role)

	user, err := svc.Verify(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.User, user)

	_, err = svc.SignUp(ctx, "tutor@example.com", "password123", ProfileFields{FullName: "Again"})
	assert.Equal(t, 409, statusOf(t, err))

	_, err = svc.SignIn(ctx, "tutor@example.com", "wrong-password")
	assert.Equal(t, 401, statusOf(t, err))

	again, err := svc.SignIn(ctx, "TUTOR@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, again.User.ID)
}

func TestSignUpRejectsAdminAndBadInput(t *testing.T) {
	svc, _ := newTestService(memstore.New())
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "a@example.com", "password123", ProfileFields{FullName: "Ada", Role: models.RoleAdmin})
	assert.Equal(t, 400, statusOf(t, err))

	_, err = svc.SignUp(ctx, "not-an-email", "password123", ProfileFields{FullName: "Ada"})
	assert.Equal(t, 400, statusOf(t, err))
	assert.Contains(t, err.Error(), "email")

	_, err = svc.SignUp(ctx, "a@example.com", "short", ProfileFields{FullName: "Ada"})
	assert.Equal(t, 400, statusOf(t, err))
}

type failingProfiles struct {
	remote.Store
}

func (f failingProfiles) Insert(ctx context.Context, table string, values remote.Values, dest any) error {
	if table == models.TableProfiles {
		return errors.New("profiles unavailable")
	}
	return f.Store.Insert(ctx, table, values, dest)
}

func TestSignUpRollsBackCredentialWhenProfileFails(t *testing.T) {
	store := memstore.New()
	svc, _ := newTestService(failingProfiles{Store: store})

	_, err := svc.SignUp(context.Background(), "s@example.com", "password123", ProfileFields{FullName: "Sam"})
	require.Error(t, err)
	n, err := store.Count(context.Background(), models.TableAuthUsers)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _ := newTestService(memstore.New())
	ctx := context.Background()
	session, err := svc.SignUp(ctx, "s@example.com", "password123", ProfileFields{FullName: "Sam"})
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, session.AccessToken)
	assert.Equal(t, 401, statusOf(t, err))

	refreshed, err := svc.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, session.User, refreshed.User)

	_, err = svc.Verify(session.RefreshToken)
	assert.Equal(t, 401, statusOf(t, err))
}

func TestPasswordResetFlow(t *testing.T) {
	svc, mailer := newTestService(memstore.New())
	ctx := context.Background()
	_, err := svc.SignUp(ctx, "s@example.com", "password123", ProfileFields{FullName: "Sam"})
	require.NoError(t, err)

	require.NoError(t, svc.ResetPasswordForEmail(ctx, "nobody@example.com", "https://app.example.com/reset"))
	assert.Empty(t, mailer.Sent())

	require.NoError(t, svc.ResetPasswordForEmail(ctx, "s@example.com", "https://app.example.com/reset"))
	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "s@example.com", sent[0].To)

	lines := strings.Split(sent[0].Body, "\n")
	link, err := url.Parse(lines[len(lines)-1])
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", link.Host)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	require.NoError(t, svc.ConfirmPasswordReset(ctx, token, "new-password-1"))
	_, err = svc.SignIn(ctx, "s@example.com", "password123")
	assert.Equal(t, 401, statusOf(t, err))
	_, err = svc.SignIn(ctx, "s@example.com", "new-password-1")
	require.NoError(t, err)

	err = svc.ConfirmPasswordReset(ctx, token, "another-password")
	assert.Equal(t, 401, statusOf(t, err))

	err = svc.ResetPasswordForEmail(ctx, "s@example.com", "javascript:alert(1)")
	assert.Equal(t, 400, statusOf(t, err))
}

func TestVerifyPasswordAcceptsLegacyBcrypt(t *testing.T) {
	tokens := testTokens()
	legacy, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, tokens.VerifyPassword("secret123", string(legacy)))
	assert.False(t, tokens.VerifyPassword("secret124", string(legacy)))

	hashed, err := tokens.HashPassword("secret123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hashed, "$argon2id$"))
	assert.True(t, tokens.VerifyPassword("secret123", hashed))
	assert.False(t, tokens.VerifyPassword("secret124", hashed))
	assert.False(t, tokens.VerifyPassword("secret123", "$argon2id$broken"))
}

type stubAuth struct {
	refreshed int
	fail      bool
	expiresAt time.Time
}

func (s *stubAuth) SignUp(context.Context, string, string, ProfileFields) (Session, error) {
	return Session{}, errors.New("unused")
}

func (s *stubAuth) SignIn(_ context.Context, email, _ string) (Session, error) {
	return Session{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: s.expiresAt, User: User{ID: "u1", Email: email}}, nil
}

func (s *stubAuth) Refresh(_ context.Context, token string) (Session, error) {
	s.refreshed++
	if s.fail {
		return Session{}, services.ErrUnauthorized("expired")
	}
	return Session{AccessToken: "a2", RefreshToken: token, ExpiresAt: s.expiresAt.Add(time.Hour), User: User{ID: "u1"}}, nil
}

func TestClientRefreshesExpiredSession(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	stub := &stubAuth{expiresAt: now.Add(time.Minute)}
	client := NewClient(stub, func() time.Time { return now })
	ctx := context.Background()

	s, err := client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = client.SignIn(ctx, "u@example.com", "pw")
	require.NoError(t, err)
	s, err = client.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", s.AccessToken)
	assert.Zero(t, stub.refreshed)

	now = now.Add(2 * time.Minute)
	s, err = client.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", s.AccessToken)
	assert.Equal(t, 1, stub.refreshed)

	now = now.Add(2 * time.Hour)
	stub.fail = true
	s, err = client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = client.SignIn(ctx, "u@example.com", "pw")
	require.NoError(t, err)
	require.NoError(t, client.SignOut(ctx))
	s, err = client.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}
