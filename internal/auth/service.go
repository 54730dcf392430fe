// Package auth is the identity collaborator: credentials, sessions and
// password reset on top of the remote store.
package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"lms-dashboard-go/internal/logger"
	"lms-dashboard-go/internal/models"
	"lms-dashboard-go/internal/remote"
	"lms-dashboard-go/internal/services"
)

// User is the identity carried by a session.
type User struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// ProfileFields are stored on the profile row created at sign-up.
type ProfileFields struct {
	FullName string      `json:"full_name" validate:"required,min=2,max=120"`
	Role     models.Role `json:"role" validate:"omitempty,oneof=student tutor"`
}

type signUpInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	ProfileFields
}

type Service struct {
	store  remote.Store
	tokens TokenService
	mailer Mailer
	log    *logger.Logger
}

func NewService(store remote.Store, tokens TokenService, mailer Mailer, log *logger.Logger) *Service {
	return &Service{store: store, tokens: tokens, mailer: mailer, log: log.With("service", "AuthService")}
}

func (s *Service) Tokens() TokenService {
	return s.tokens
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) SignUp(ctx context.Context, email, password string, fields ProfileFields) (Session, error) {
	input := signUpInput{Email: normalizeEmail(email), Password: password, ProfileFields: fields}
	input.FullName = strings.TrimSpace(input.FullName)
	if input.Role == "" {
		input.Role = models.RoleStudent
	}
	if err := services.Validate(input); err != nil {
		return Session{}, err
	}
	hash, err := s.tokens.HashPassword(password)
	if err != nil {
		return Session{}, services.WrapError(err, "hash password")
	}

	now := s.tokens.now()
	id := uuid.NewString()
	err = s.store.Insert(ctx, models.TableAuthUsers, remote.Values{
		"id":            id,
		"email":         input.Email,
		"password_hash": hash,
		"created_at":    now,
		"updated_at":    now,
	}, nil)
	if errors.Is(err, remote.ErrDuplicate) {
		return Session{}, services.ErrConflict("Email already registered")
	}
	if err != nil {
		s.log.Error("insert credential failed", "error", err)
		return Session{}, err
	}

	var profile models.Profile
	err = s.store.Insert(ctx, models.TableProfiles, remote.Values{
		"id":         id,
		"full_name":  input.FullName,
		"email":      input.Email,
		"role":       input.Role,
		"created_at": now,
		"updated_at": now,
	}, &profile)
	if err != nil {
		s.log.Error("insert profile failed, rolling back credential", "user_id", id, "error", err)
		if rbErr := s.store.Delete(ctx, models.TableAuthUsers, remote.Eq("id", id)); rbErr != nil {
			s.log.Error("credential rollback failed", "user_id", id, "error", rbErr)
		}
		return Session{}, err
	}
	return s.issue(User{ID: id, Email: input.Email, Role: profile.Role})
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	cred, err := s.credentialByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return Session{}, err
	}
	if cred == nil || !s.tokens.VerifyPassword(password, cred.PasswordHash) {
		return Session{}, services.ErrUnauthorized("Invalid credentials")
	}
	role, err := s.roleOf(ctx, cred.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issue(User{ID: cred.ID, Email: cred.Email, Role: role})
}

// Refresh exchanges a refresh token for a new session. The role is re-read so
// role changes take effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.tokens.ParseToken(refreshToken, TypeRefresh)
	if err != nil {
		return Session{}, services.ErrUnauthorized("Invalid refresh token")
	}
	cred, err := s.credentialByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	if cred == nil {
		return Session{}, services.ErrUnauthorized("Invalid refresh token")
	}
	role, err := s.roleOf(ctx, cred.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issue(User{ID: cred.ID, Email: cred.Email, Role: role})
}

// Verify checks an access token and returns its identity.
func (s *Service) Verify(accessToken string) (User, error) {
	claims, err := s.tokens.ParseToken(accessToken, TypeAccess)
	if err != nil {
		return User{}, services.ErrUnauthorized("Invalid token")
	}
	return User{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// ResetPasswordForEmail mails a reset link to email. Unknown addresses succeed
// without sending anything.
func (s *Service) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	email = normalizeEmail(email)
	if email == "" {
		return services.ErrBadRequest("email is required")
	}
	link, err := url.Parse(redirectTo)
	if err != nil || (redirectTo != "" && link.Scheme != "http" && link.Scheme != "https") {
		return services.ErrBadRequest("redirect_to must be an http(s) URL")
	}
	cred, err := s.credentialByEmail(ctx, email)
	if err != nil {
		return err
	}
	if cred == nil {
		s.log.Info("password reset requested for unknown email")
		return nil
	}
	token, err := s.tokens.CreateResetToken(cred.ID, cred.PasswordHash)
	if err != nil {
		return services.WrapError(err, "create reset token")
	}
	query := link.Query()
	query.Set("token", token)
	link.RawQuery = query.Encode()
	body := "Use the link below to choose a new password. It expires in " +
		s.tokens.ResetTTL.String() + ".\n\n" + link.String()
	return s.mailer.Send(ctx, cred.Email, "Reset your password", body)
}

// ConfirmPasswordReset sets a new password. A token stops working once the
// password it was issued against has changed.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 || len(newPassword) > 72 {
		return services.ErrBadRequest("password must be between 8 and 72 characters")
	}
	claims, err := s.tokens.ParseToken(token, TypeReset)
	if err != nil {
		return services.ErrUnauthorized("Invalid or expired reset token")
	}
	cred, err := s.credentialByID(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if cred == nil || fingerprint(cred.PasswordHash) != claims.Fingerprint {
		return services.ErrUnauthorized("Invalid or expired reset token")
	}
	hash, err := s.tokens.HashPassword(newPassword)
	if err != nil {
		return services.WrapError(err, "hash password")
	}
	return s.store.Update(ctx, models.TableAuthUsers, []remote.Filter{remote.Eq("id", cred.ID)},
		remote.Values{"password_hash": hash, "updated_at": s.tokens.now()}, nil)
}

func (s *Service) issue(user User) (Session, error) {
	access, exp, err := s.tokens.CreateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return Session{}, services.WrapError(err, "sign access token")
	}
	refresh, err := s.tokens.CreateRefreshToken(user.ID)
	if err != nil {
		return Session{}, services.WrapError(err, "sign refresh token")
	}
	return Session{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp, User: user}, nil
}

func (s *Service) credentialByEmail(ctx context.Context, email string) (*models.Credential, error) {
	return s.credential(ctx, remote.Eq("email", email))
}

func (s *Service) credentialByID(ctx context.Context, id string) (*models.Credential, error) {
	return s.credential(ctx, remote.Eq("id", id))
}

func (s *Service) credential(ctx context.Context, filter remote.Filter) (*models.Credential, error) {
	var rows []models.Credential
	err := s.store.Select(ctx, remote.Query{Table: models.TableAuthUsers, Filters: []remote.Filter{filter}, Limit: 1}, &rows)
	if err != nil {
		s.log.Error("load credential failed", "error", err)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Service) roleOf(ctx context.Context, id string) (models.Role, error) {
	var rows []models.Profile
	err := s.store.Select(ctx, remote.Query{
		Table:   models.TableProfiles,
		Columns: []string{"id", "role"},
		Filters: []remote.Filter{remote.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", services.ErrUnauthorized("Profile not found")
	}
	return rows[0].Role, nil
}
