// Package auth authenticates operators: password login with per-IP
// throttling, session-backed bearer tokens, logout and password changes.
// Every attempt, successful or not, lands in the audit trail.
package auth

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/domain/user"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// AttemptCounter counts failed logins per key inside a window.
type AttemptCounter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Count(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// AuditSink persists audit records.
type AuditSink interface {
	CreateAuditRecord(ctx context.Context, r *domain.AuditRecord) error
}

// AuditPublisher forwards committed audit records downstream.
type AuditPublisher interface {
	PublishAudit(ctx context.Context, rec domain.AuditRecord) error
}

// Config tunes throttling and password rules.
type Config struct {
	MaxAttempts    int
	Window         time.Duration
	BcryptCost     int
	MinPasswordLen int
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Window <= 0 {
		c.Window = 300 * time.Second
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.MinPasswordLen <= 0 {
		c.MinPasswordLen = 8
	}
}

// Deps groups the collaborators of the Service. Publisher, Metrics and Now
// are optional.
type Deps struct {
	Users     user.UserRepository
	Sessions  user.SessionStore
	Attempts  AttemptCounter
	Audit     AuditSink
	Publisher AuditPublisher
	Config    Config
	Logger    logging.Logger
	Metrics   *prometheus.AppMetrics
	Now       func() time.Time
}

// LoginInput carries the credentials of a login attempt.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

// ChangePasswordInput carries a password change request.
type ChangePasswordInput struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password" validate:"required"`
}

// Service implements login, logout, session resolution and password
// changes.
type Service struct {
	users     user.UserRepository
	sessions  user.SessionStore
	attempts  AttemptCounter
	audit     AuditSink
	publisher AuditPublisher
	cfg       Config
	logger    logging.Logger
	metrics   *prometheus.AppMetrics
	now       func() time.Time
}

// NewService constructs a Service.
func NewService(d Deps) *Service {
	d.Config.applyDefaults()
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = logging.NewNopLogger()
	}
	return &Service{
		users:     d.Users,
		sessions:  d.Sessions,
		attempts:  d.Attempts,
		audit:     d.Audit,
		publisher: d.Publisher,
		cfg:       d.Config,
		logger:    d.Logger.Named("auth"),
		metrics:   d.Metrics,
		now:       d.Now,
	}
}

// unknownUserID is the audit entity id of attempts on unknown emails.
const unknownUserID = "unknown"

// Login checks the credentials and opens a session. Failures are counted
// per client IP; once the limit is reached every attempt is refused until
// the window elapses, even with valid credentials.
func (s *Service) Login(ctx context.Context, in LoginInput, meta domain.RequestMeta) (*LoginResult, error) {
	email := user.NormalizeEmail(in.Email)
	key := "login:" + meta.IPAddress

	if s.attempts != nil {
		n, err := s.attempts.Count(ctx, key)
		if err != nil {
			s.logger.Warn("login throttle unavailable", logging.String("ip", meta.IPAddress), logging.Err(err))
		} else if n >= int64(s.cfg.MaxAttempts) {
			prometheus.RecordLogin(s.metrics, "throttled")
			s.logger.Warn("login throttled", logging.String("ip", meta.IPAddress), logging.Int64("attempts", n))
			return nil, apperrors.New(apperrors.ErrCodeLoginThrottled, "Trop de tentatives de connexion. Réessayez plus tard.").
				WithMeta("retry_after_seconds", int(s.cfg.Window.Seconds()))
		}
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}
	if u == nil || !u.IsActive || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		s.failedLogin(ctx, email, u, meta)
		return nil, apperrors.New(apperrors.ErrCodeInvalidCredentials, "Email ou mot de passe incorrect")
	}

	now := s.now().UTC()
	if err := s.users.UpdateLoginInfo(ctx, u.ID, meta.IPAddress); err != nil {
		return nil, err
	}
	u.RecordLogin(meta.IPAddress, now)

	sess, err := s.sessions.Create(ctx, user.Session{UserID: u.ID.String(), Email: u.Email, EntrepriseID: u.EntrepriseID})
	if err != nil {
		return nil, err
	}
	if s.attempts != nil {
		if err := s.attempts.Reset(ctx, key); err != nil {
			s.logger.Warn("failed to reset login attempts", logging.String("ip", meta.IPAddress), logging.Err(err))
		}
	}

	s.record(ctx, domain.AuditLogin, u.ID.String(), u.Representation(), u.Email, nil, meta)
	prometheus.RecordLogin(s.metrics, "success")
	s.logger.Info("user logged in", logging.String("user_id", u.ID.String()), logging.String("ip", meta.IPAddress))
	return &LoginResult{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: u}, nil
}

func (s *Service) failedLogin(ctx context.Context, email string, u *user.User, meta domain.RequestMeta) {
	if s.attempts != nil {
		if _, err := s.attempts.Increment(ctx, "login:"+meta.IPAddress, s.cfg.Window); err != nil {
			s.logger.Warn("failed to count login attempt", logging.String("ip", meta.IPAddress), logging.Err(err))
		}
	}
	id, repr := unknownUserID, email
	if u != nil {
		id, repr = u.ID.String(), u.Representation()
	}
	s.record(ctx, domain.AuditFailedLogin, id, repr, email, map[string]interface{}{"email": email}, meta)
	prometheus.RecordLogin(s.metrics, "failure")
	s.logger.Warn("login failed", logging.String("email", email), logging.String("ip", meta.IPAddress))
}

// Authenticate resolves a bearer token to its session.
func (s *Service) Authenticate(ctx context.Context, token string) (*user.Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperrors.Unauthorized("missing token")
	}
	return s.sessions.Get(ctx, token)
}

// Logout revokes the session behind token.
func (s *Service) Logout(ctx context.Context, token string, meta domain.RequestMeta) error {
	sess, err := s.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return err
	}
	s.record(ctx, domain.AuditLogout, sess.UserID, sess.Email, sess.Email, nil, meta)
	s.logger.Info("user logged out", logging.String("user_id", sess.UserID))
	return nil
}

// ChangePassword replaces the password of userID after checking the
// current one.
func (s *Service) ChangePassword(ctx context.Context, userID string, in ChangePasswordInput, meta domain.RequestMeta) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return apperrors.InvalidParam("identifiant utilisateur invalide")
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Current)) != nil {
		s.logger.Warn("password change refused", logging.String("user_id", userID))
		return apperrors.New(apperrors.ErrCodeInvalidCredentials, "Mot de passe actuel incorrect")
	}
	if err := s.checkStrength(in.Current, in.New); err != nil {
		return err
	}
	hash, err := HashPassword(in.New, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		return err
	}
	s.record(ctx, domain.AuditChangePassword, userID, u.Representation(), u.Email, nil, meta)
	s.logger.Info("password changed", logging.String("user_id", userID))
	return nil
}

func (s *Service) checkStrength(current, next string) error {
	fields := map[string]string{}
	var letter, digit bool
	for _, r := range next {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case len([]rune(next)) < s.cfg.MinPasswordLen:
		fields["new_password"] = "Le mot de passe est trop court"
	case !letter || !digit:
		fields["new_password"] = "Le mot de passe doit contenir des lettres et des chiffres"
	case next == current:
		fields["new_password"] = "Le nouveau mot de passe doit être différent de l'actuel"
	}
	if len(fields) == 0 {
		return nil
	}
	err := apperrors.New(apperrors.ErrCodeWeakPassword, "mot de passe refusé")
	for k, v := range fields {
		err = err.WithField(k, v)
	}
	return err
}

// record writes an audit record and forwards it. Audit failures never fail
// the authentication flow.
func (s *Service) record(ctx context.Context, action domain.AuditAction, entityID, repr, actor string, changes map[string]interface{}, meta domain.RequestMeta) {
	if meta.Actor == "" {
		meta.Actor = actor
	}
	rec := &domain.AuditRecord{
		ID:             uuid.NewString(),
		Actor:          meta.ActorOrSystem(),
		Action:         action,
		EntityType:     domain.EntityUser,
		EntityID:       entityID,
		Representation: repr,
		Changes:        changes,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		Timestamp:      s.now().UTC(),
	}
	if s.audit != nil {
		if err := s.audit.CreateAuditRecord(ctx, rec); err != nil {
			s.logger.Error("failed to write audit record", logging.String("action", string(action)), logging.Err(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishAudit(ctx, *rec); err != nil {
			s.logger.Warn("failed to publish audit record", logging.String("action", string(action)), logging.Err(err))
		}
	}
}

// HashPassword hashes a password with bcrypt at cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to hash password")
	}
	return string(hash), nil
}
