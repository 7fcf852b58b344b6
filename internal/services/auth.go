package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/huangang/tasksentry/internal/authz"
	"github.com/huangang/tasksentry/internal/config"
	"github.com/huangang/tasksentry/internal/models"
	"github.com/huangang/tasksentry/internal/utils"
	"github.com/huangang/tasksentry/pkg/logger"
	"github.com/huangang/tasksentry/pkg/outcome"
	"gorm.io/gorm"
)

// DefaultRefreshTTL applies when no refresh lifetime is configured.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// AuthObserver counts authentication attempts.
type AuthObserver interface {
	ObserveAuthAttempt(success bool)
}

type AuthService struct {
	db         *gorm.DB
	dir        *Directory
	tokens     *utils.TokenManager
	ldap       LDAPAuthenticator
	audit      *AuditService
	observer   AuthObserver
	refreshTTL time.Duration
	now        func() time.Time
}

type AuthOption func(*AuthService)

func WithLDAP(l LDAPAuthenticator) AuthOption {
	return func(s *AuthService) { s.ldap = l }
}

func WithAuthObserver(o AuthObserver) AuthOption {
	return func(s *AuthService) { s.observer = o }
}

func WithAuthAudit(a *AuditService) AuthOption {
	return func(s *AuthService) { s.audit = a }
}

func WithRefreshTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

func NewAuthService(db *gorm.DB, dir *Directory, tokens *utils.TokenManager, opts ...AuthOption) *AuthService {
	s := &AuthService{
		db:         db,
		dir:        dir,
		tokens:     tokens,
		refreshTTL: DefaultRefreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type LoginRequest struct {
	// Identifier is a username or an email address.
	Identifier string `json:"identifier" binding:"required,max=255"`
	Password   string `json:"password" binding:"required,max=72"`
}

// RefreshRequest carries a refresh token for rotation or logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required,max=128"`
}

type LoginResult struct {
	AccessToken     string       `json:"access_token"`
	AccessExpireAt  time.Time    `json:"access_expire_at"`
	RefreshToken    string       `json:"refresh_token"`
	RefreshExpireAt time.Time    `json:"refresh_expire_at"`
	User            *models.User `json:"user"`
}

var (
	timingHash     string
	timingHashOnce sync.Once
)

// burnPasswordCheck spends the same time as a real bcrypt comparison so a
// missing or inactive account cannot be told apart by latency.
func burnPasswordCheck(password string) {
	timingHashOnce.Do(func() {
		timingHash, _ = utils.HashPassword("tasksentry-timing-equalizer")
	})
	utils.CheckPassword(password, timingHash)
}

func (s *AuthService) observe(success bool) {
	if s.observer != nil {
		s.observer.ObserveAuthAttempt(success)
	}
}

func (s *AuthService) fail() outcome.Outcome[*models.User] {
	s.observe(false)
	return outcome.Failure[*models.User](MsgInvalidCredentials)
}

// Authenticate resolves identifier as a username, then as an email, and
// verifies the password. Every expected failure carries the same message.
func (s *AuthService) Authenticate(ctx context.Context, identifier, password string) (outcome.Outcome[*models.User], error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return s.fail(), nil
	}

	user, err := s.dir.ResolveIdentifier(ctx, identifier)
	if err != nil {
		return outcome.Outcome[*models.User]{}, err
	}

	if user == nil {
		if s.ldap != nil && s.ldap.IsEnabled() && !strings.Contains(identifier, "@") {
			return s.provisionFromLDAP(ctx, identifier, password)
		}
		burnPasswordCheck(password)
		return s.fail(), nil
	}

	if !user.IsActive {
		burnPasswordCheck(password)
		return s.fail(), nil
	}

	switch user.AuthType {
	case models.AuthTypeLDAP:
		if s.ldap == nil || !s.ldap.IsEnabled() {
			return s.fail(), nil
		}
		ldapUser, err := s.ldap.Authenticate(user.Username, password)
		if errors.Is(err, ErrLDAPRejected) {
			return s.fail(), nil
		}
		if err != nil {
			return outcome.Outcome[*models.User]{}, err
		}
		if ldapUser.DisplayName != "" && ldapUser.DisplayName != user.DisplayName {
			user.DisplayName = ldapUser.DisplayName
			if err := s.db.WithContext(ctx).Model(user).UpdateColumn("display_name", user.DisplayName).Error; err != nil {
				logger.Warn().Err(err).Uint("user_id", user.ID).Msg("Failed to sync LDAP display name")
			}
		}
	default:
		if !utils.CheckPassword(password, user.Password) {
			return s.fail(), nil
		}
	}

	s.observe(true)
	return outcome.Success(user), nil
}

// provisionFromLDAP creates a guest account for a directory user seen for
// the first time.
func (s *AuthService) provisionFromLDAP(ctx context.Context, username, password string) (outcome.Outcome[*models.User], error) {
	ldapUser, err := s.ldap.Authenticate(username, password)
	if errors.Is(err, ErrLDAPRejected) {
		return s.fail(), nil
	}
	if err != nil {
		return outcome.Outcome[*models.User]{}, err
	}

	email := ldapUser.Email
	if email == "" {
		email = ldapUser.Username + "@ldap.invalid"
	}
	if existing, err := s.dir.FindByEmail(ctx, email); err != nil {
		return outcome.Outcome[*models.User]{}, err
	} else if existing != nil {
		logger.Warn().Str("username", ldapUser.Username).Msg("LDAP user email already belongs to a local account")
		return s.fail(), nil
	}

	user := &models.User{
		Username:    ldapUser.Username,
		Email:       email,
		DisplayName: ldapUser.DisplayName,
		Role:        authz.Guest.String(),
		AuthType:    models.AuthTypeLDAP,
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return outcome.Outcome[*models.User]{}, fmt.Errorf("provision ldap user: %w", err)
	}
	logger.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("Provisioned LDAP user")

	s.observe(true)
	return outcome.Success(user), nil
}

// IssueSession signs an access token for the user. The role claim is the
// normalized stored role.
func (s *AuthService) IssueSession(user *models.User) (string, time.Time, error) {
	return s.tokens.Issue(user.ID, user.Name(), authz.ParseRole(user.Role).String())
}

// ValidateSession checks an access token.
func (s *AuthService) ValidateSession(token string) outcome.Outcome[utils.Session] {
	session, err := s.tokens.Validate(token)
	if err != nil {
		return outcome.Failure[utils.Session](MsgInvalidSession)
	}
	return outcome.Success(*session)
}

// Login authenticates and opens a session with a refresh token.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest, clientIP, userAgent string) (outcome.Outcome[*LoginResult], error) {
	auth, err := s.Authenticate(ctx, req.Identifier, req.Password)
	if err != nil {
		return outcome.Outcome[*LoginResult]{}, err
	}
	if !auth.IsSuccess() {
		return outcome.Chain[*LoginResult](auth, ""), nil
	}
	user := auth.Data()

	result, err := s.openSession(ctx, user, clientIP, userAgent)
	if err != nil {
		return outcome.Outcome[*LoginResult]{}, err
	}

	now := s.now()
	user.LastLogin = &now
	if err := s.db.WithContext(ctx).Model(user).UpdateColumn("last_login", now).Error; err != nil {
		logger.Warn().Err(err).Uint("user_id", user.ID).Msg("Failed to update last login")
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    user.ID,
		Action:     "login",
		EntityType: EntityUser,
		EntityID:   user.ID,
		IP:         clientIP,
		UserAgent:  userAgent,
	})
	return outcome.Success(result), nil
}

func (s *AuthService) openSession(ctx context.Context, user *models.User, clientIP, userAgent string) (*LoginResult, error) {
	accessToken, accessExpireAt, err := s.IssueSession(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refreshToken, refreshHash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	record := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: refreshHash,
		ExpiresAt: s.now().Add(s.refreshTTL),
		ClientIP:  clientIP,
		UserAgent: truncate(userAgent, 255),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &LoginResult{
		AccessToken:     accessToken,
		AccessExpireAt:  accessExpireAt,
		RefreshToken:    refreshToken,
		RefreshExpireAt: record.ExpiresAt,
		User:            user,
	}, nil
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated revokes every open session of its owner.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, clientIP, userAgent string) (outcome.Outcome[*LoginResult], error) {
	if refreshToken == "" {
		return outcome.Failure[*LoginResult](MsgInvalidRefresh), nil
	}

	var stored models.RefreshToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", hashRefreshToken(refreshToken)).First(&stored).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return outcome.Failure[*LoginResult](MsgInvalidRefresh), nil
	}
	if err != nil {
		return outcome.Outcome[*LoginResult]{}, fmt.Errorf("find refresh token: %w", err)
	}

	now := s.now()
	if stored.Rotated() {
		logger.Warn().Uint("user_id", stored.UserID).Msg("Rotated refresh token reused, revoking all sessions")
		if err := s.RevokeAllForUser(ctx, stored.UserID); err != nil {
			return outcome.Outcome[*LoginResult]{}, err
		}
		return outcome.Failure[*LoginResult](MsgInvalidRefresh), nil
	}
	if !stored.Usable(now) {
		return outcome.Failure[*LoginResult](MsgInvalidRefresh), nil
	}

	user, err := s.dir.FindByID(ctx, stored.UserID)
	if err != nil {
		return outcome.Outcome[*LoginResult]{}, err
	}
	if user == nil || !user.IsActive {
		return outcome.Failure[*LoginResult](MsgInvalidRefresh), nil
	}

	accessToken, accessExpireAt, err := s.IssueSession(user)
	if err != nil {
		return outcome.Outcome[*LoginResult]{}, fmt.Errorf("issue access token: %w", err)
	}
	newToken, newHash, err := generateRefreshToken()
	if err != nil {
		return outcome.Outcome[*LoginResult]{}, err
	}

	newRefresh := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: newHash,
		ExpiresAt: now.Add(s.refreshTTL),
		ClientIP:  clientIP,
		UserAgent: truncate(userAgent, 255),
	}

	rotated := false
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&newRefresh).Error; err != nil {
			return err
		}
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", stored.ID).
			Updates(map[string]interface{}{
				"revoked_at":   now,
				"successor_id": newRefresh.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost a race with a concurrent rotation of the same token.
			return errTokenAlreadyRotated
		}
		rotated = true
		return nil
	}); err != nil && !errors.Is(err, errTokenAlreadyRotated) {
		return outcome.Outcome[*LoginResult]{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !rotated {
		return outcome.Failure[*LoginResult](MsgInvalidRefresh), nil
	}

	return outcome.Success(&LoginResult{
		AccessToken:     accessToken,
		AccessExpireAt:  accessExpireAt,
		RefreshToken:    newToken,
		RefreshExpireAt: newRefresh.ExpiresAt,
		User:            user,
	}), nil
}

var errTokenAlreadyRotated = errors.New("refresh token already rotated")

// Logout revokes a refresh token. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", hashRefreshToken(refreshToken)).
		Update("revoked_at", s.now()).Error
}

// RevokeAllForUser revokes every open refresh token of a user.
func (s *AuthService) RevokeAllForUser(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", s.now()).Error; err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

// PurgeRefreshTokens deletes tokens that expired or were revoked more than a
// day ago.
func (s *AuthService) PurgeRefreshTokens(ctx context.Context) (int64, error) {
	now := s.now()
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR revoked_at < ?", now, now.Add(-24*time.Hour)).
		Delete(&models.RefreshToken{})
	return result.RowsAffected, result.Error
}

func generateRefreshToken() (token string, tokenHash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(randomBytes)
	tokenHash = hashRefreshToken(token)
	return token, tokenHash, nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// ChangePassword replaces the caller's own password and closes its other
// sessions.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req *ChangePasswordRequest) (outcome.Outcome[outcome.Empty], error) {
	user, err := s.dir.FindByID(ctx, userID)
	if err != nil {
		return outcome.Outcome[outcome.Empty]{}, err
	}
	if user == nil || !user.IsActive {
		return outcome.Failure[outcome.Empty](MsgInvalidSession), nil
	}
	if user.AuthType != models.AuthTypeLocal {
		return outcome.Failure[outcome.Empty](MsgExternalAccount), nil
	}
	if !utils.CheckPassword(req.OldPassword, user.Password) {
		return outcome.Failure[outcome.Empty](MsgPasswordMismatch), nil
	}
	if len(req.NewPassword) > utils.MaxPasswordBytes {
		return outcome.Failure[outcome.Empty](MsgPasswordTooLong), nil
	}

	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return outcome.Outcome[outcome.Empty]{}, err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password", hashed).Error; err != nil {
		return outcome.Outcome[outcome.Empty]{}, fmt.Errorf("update password: %w", err)
	}
	if err := s.RevokeAllForUser(ctx, user.ID); err != nil {
		return outcome.Outcome[outcome.Empty]{}, err
	}

	s.audit.Record(ctx, AuditEntry{ActorID: user.ID, Action: "change_password", EntityType: EntityUser, EntityID: user.ID})
	return outcome.Success(outcome.Empty{}, "password changed"), nil
}

// CreateAdminIfNotExists creates the bootstrap admin when no active admin
// exists. It reports whether an account was created.
func (s *AuthService) CreateAdminIfNotExists(ctx context.Context, cfg config.AdminConfig) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ? AND is_active = ?", authz.Admin.String(), true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	if existing, err := s.dir.FindByUsername(ctx, cfg.Username); err != nil {
		return false, err
	} else if existing != nil {
		return false, fmt.Errorf("bootstrap admin %q exists but is not an active admin", cfg.Username)
	}

	hashed, err := utils.HashPassword(cfg.Password)
	if err != nil {
		return false, err
	}

	admin := models.User{
		Username:    cfg.Username,
		Email:       cfg.Email,
		Password:    hashed,
		DisplayName: "Administrator",
		Role:        authz.Admin.String(),
		AuthType:    models.AuthTypeLocal,
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}
