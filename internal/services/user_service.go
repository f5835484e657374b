package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"lims/internal/audit"
	"lims/internal/auth/revocation"
	apperrors "lims/internal/errors"
	"lims/internal/logger"
	"lims/internal/models"
	"lims/internal/reqctx"
)

const minPasswordLength = 8

// LockoutPolicy controls how many consecutive failed logins lock an account
// and for how long.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// userService handles user-related business logic.
type userService struct {
	db          *gorm.DB
	gateway     *audit.Gateway
	recorder    *audit.Recorder
	revocations revocation.List
	lockout     LockoutPolicy
	now         func() time.Time
}

// NewUserService creates a new UserServicer.
func NewUserService(db *gorm.DB, gateway *audit.Gateway, recorder *audit.Recorder, revocations revocation.List, lockout LockoutPolicy) UserServicer {
	if lockout.Threshold <= 0 {
		lockout.Threshold = 5
	}
	if lockout.Duration <= 0 {
		lockout.Duration = 15 * time.Minute
	}
	return &userService{
		db:          db,
		gateway:     gateway,
		recorder:    recorder,
		revocations: revocations,
		lockout:     lockout,
		now:         time.Now,
	}
}

// CreateUser registers a new user
func (s *userService) CreateUser(ctx context.Context, email, password, name string, role models.UserRole) (*models.User, error) {
	if email == "" || password == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "email and password are required")
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "password must be at least 8 characters")
	}
	if role == "" {
		role = models.RoleAnalyst
	}

	email = strings.ToLower(email)
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.ErrDuplicateEmail
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hashedPassword),
		Name:     name,
		Role:     role,
		IsActive: true,
	}
	if err := s.gateway.Create(ctx, user); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return user, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// AttemptLogin verifies credentials and enforces the lockout policy. Every
// attempt is recorded as a LOGIN or LOGIN_FAILED event. Unknown emails and
// wrong passwords both return ErrInvalidCredentials.
func (s *userService) AttemptLogin(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(email)

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ? AND is_active = ?", email, true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recorder.Record(ctx, audit.AuthEvent{
				Action: audit.ActionLoginFailed,
				Meta:   map[string]any{"email": email, "reason": "unknown_user"},
			})
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		s.recorder.Record(ctx, audit.AuthEvent{
			Action: audit.ActionLoginFailed,
			UserID: user.ID,
			Role:   string(user.Role),
			Meta:   map[string]any{"email": email, "reason": "locked"},
		})
		return nil, apperrors.ErrAccountLocked
	}

	// Lockout bookkeeping is covered by the auth events.
	quiet := reqctx.WithSkipAudit(ctx)

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		attempts, locked := s.recordFailure(ctx, user.ID, now)

		meta := map[string]any{"email": email, "reason": "bad_password", "attempts": attempts}
		if locked {
			meta["locked"] = true
		}
		s.recorder.Record(ctx, audit.AuthEvent{
			Action: audit.ActionLoginFailed,
			UserID: user.ID,
			Role:   string(user.Role),
			Meta:   meta,
		})
		if locked {
			return nil, apperrors.ErrAccountLocked
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	err = s.gateway.Update(quiet, &user, user.ID, map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         now,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.recorder.Record(ctx, audit.AuthEvent{
		Action: audit.ActionLogin,
		UserID: user.ID,
		Role:   string(user.Role),
	})
	return &user, nil
}

// recordFailure counts a failed login in the database and locks the account
// once the threshold is reached. Concurrent failures each count once.
func (s *userService) recordFailure(ctx context.Context, userID string, now time.Time) (attempts int, locked bool) {
	log := logger.FromContext(ctx)
	quiet := reqctx.WithSkipAudit(ctx)

	var counted models.User
	err := s.gateway.Update(quiet, &counted, userID, map[string]any{
		"failed_login_attempts": gorm.Expr("failed_login_attempts + ?", 1),
	})
	if err != nil {
		log.Errorw("failed to record failed login", "error", err, "user_id", userID)
		return 0, false
	}
	attempts = counted.FailedLoginAttempts
	if attempts < s.lockout.Threshold {
		return attempts, false
	}

	// Only one of several concurrent failures past the threshold resets the counter.
	err = s.gateway.Update(quiet, &models.User{}, userID, map[string]any{
		"locked_until":          now.Add(s.lockout.Duration),
		"failed_login_attempts": 0,
	}, audit.Where("failed_login_attempts >= ?", s.lockout.Threshold))
	if err != nil && !errors.Is(err, audit.ErrStaleWrite) {
		log.Errorw("failed to lock account", "error", err, "user_id", userID)
	}
	return attempts, true
}

// Logout revokes the access token identified by jti until it would have
// expired and invalidates the stored refresh token.
func (s *userService) Logout(ctx context.Context, userID, jti string, expiresAt time.Time) error {
	if ttl := expiresAt.Sub(s.now()); ttl > 0 {
		if err := s.revocations.Revoke(ctx, jti, ttl); err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	err := s.gateway.Update(reqctx.WithSkipAudit(ctx), &models.User{}, userID, map[string]any{"refresh_token_hash": ""})
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.recorder.Record(ctx, audit.AuthEvent{Action: audit.ActionLogout, UserID: userID})
	return nil
}

// ChangePassword replaces the password after verifying the current one.
// Existing refresh tokens stop working.
func (s *userService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(currentPassword)) != nil {
		return apperrors.WithMessage(apperrors.ErrInvalidCredentials, "Current password is incorrect")
	}
	if len(newPassword) < minPasswordLength {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "password must be at least 8 characters")
	}
	if newPassword == currentPassword {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "new password must differ from the current one")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	// Password hashes never appear in snapshots; PASSWORD_CHANGE is the record.
	err = s.gateway.Update(reqctx.WithSkipAudit(ctx), &models.User{}, userID, map[string]any{
		"password":           string(hashed),
		"refresh_token_hash": "",
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.recorder.Record(ctx, audit.AuthEvent{
		Action: audit.ActionPasswordChange,
		UserID: user.ID,
		Role:   string(user.Role),
	})
	return nil
}

// VerifyESign checks an e-signature password against the user's credentials.
func (s *userService) VerifyESign(ctx context.Context, userID, password string) error {
	if password == "" {
		return apperrors.ErrESignRequired
	}
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return apperrors.ErrInvalidESign
	}
	return nil
}

// StoreRefreshTokenHash stores the SHA-256 hash of the user's current refresh token.
func (s *userService) StoreRefreshTokenHash(ctx context.Context, userID, tokenHash string) error {
	err := s.gateway.Update(reqctx.WithSkipAudit(ctx), &models.User{}, userID, map[string]any{"refresh_token_hash": tokenHash})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// GetRefreshTokenHash returns the stored refresh token hash for a user.
func (s *userService) GetRefreshTokenHash(ctx context.Context, userID string) (string, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.RefreshTokenHash, nil
}
