package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/domain/user"
	rediscache "github.com/turtacn/TransitLedger/internal/infrastructure/database/redis"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/TransitLedger/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, u *user.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*user.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*user.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

func (m *mockUserRepo) UpdateLoginInfo(ctx context.Context, id uuid.UUID, ip string) error {
	return m.Called(ctx, id, ip).Error(0)
}

type auditLog struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (a *auditLog) CreateAuditRecord(_ context.Context, r *domain.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, *r)
	return nil
}

func (a *auditLog) last() domain.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records[len(a.records)-1]
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture
// ─────────────────────────────────────────────────────────────────────────────

const testPassword = "Camion2025"

type authFixture struct {
	svc   *Service
	users *mockUserRepo
	audit *auditLog
	mr    *miniredis.Miniredis
	user  *user.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client, err := rediscache.NewClient(&rediscache.RedisConfig{Mode: "standalone", Addr: mr.Addr(), KeyPrefix: "tl"}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	hash, err := HashPassword(testPassword, bcrypt.MinCost)
	require.NoError(t, err)

	f := &authFixture{
		users: &mockUserRepo{},
		audit: &auditLog{},
		mr:    mr,
		user: &user.User{
			ID:           uuid.MustParse("7c1e6a52-3f0b-4d8e-9a55-0b7e2f1c9d01"),
			Email:        "ops@transit.ml",
			Username:     "ops",
			DisplayName:  "Awa Diarra",
			PasswordHash: hash,
			IsActive:     true,
		},
	}
	f.svc = NewService(Deps{
		Users:    f.users,
		Sessions: rediscache.NewSessionStore(client, time.Hour),
		Attempts: rediscache.NewCounterStore(client),
		Audit:    f.audit,
		Config:   Config{MaxAttempts: 3, Window: 5 * time.Minute, BcryptCost: bcrypt.MinCost},
		Now:      func() time.Time { return time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC) },
	})
	return f
}

var loginMeta = domain.RequestMeta{IPAddress: "10.0.0.9", UserAgent: "curl"}

// ─────────────────────────────────────────────────────────────────────────────
// Login
// ─────────────────────────────────────────────────────────────────────────────

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "ops@transit.ml").Return(f.user, nil)
	f.users.On("UpdateLoginInfo", ctx, f.user.ID, "10.0.0.9").Return(nil)

	res, err := f.svc.Login(ctx, LoginInput{Email: " OPS@transit.ml ", Password: testPassword}, loginMeta)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, 1, res.User.LoginCount)
	assert.Equal(t, "10.0.0.9", res.User.LastLoginIP)

	rec := f.audit.last()
	assert.Equal(t, domain.AuditLogin, rec.Action)
	assert.Equal(t, domain.EntityUser, rec.EntityType)
	assert.Equal(t, f.user.ID.String(), rec.EntityID)
	assert.Equal(t, "ops@transit.ml", rec.Actor)
	assert.Equal(t, "curl", rec.UserAgent)

	sess, err := f.svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID.String(), sess.UserID)
	f.users.AssertExpectations(t)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "ops@transit.ml").Return(f.user, nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: "nope"}, loginMeta)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials))

	rec := f.audit.last()
	assert.Equal(t, domain.AuditFailedLogin, rec.Action)
	assert.Equal(t, f.user.ID.String(), rec.EntityID)
	f.users.AssertNotCalled(t, "UpdateLoginInfo", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_UnknownEmailAuditedAsUnknown(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "ghost@transit.ml").
		Return(nil, apperrors.New(apperrors.ErrCodeUserNotFound, "user not found"))

	_, err := f.svc.Login(ctx, LoginInput{Email: "ghost@transit.ml", Password: testPassword}, loginMeta)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))

	rec := f.audit.last()
	assert.Equal(t, domain.AuditFailedLogin, rec.Action)
	assert.Equal(t, "unknown", rec.EntityID)
	assert.Equal(t, "ghost@transit.ml", rec.Changes["email"])
}

func TestLogin_InactiveUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.user.IsActive = false
	f.users.On("GetByEmail", ctx, "ops@transit.ml").Return(f.user, nil)

	_, err := f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: testPassword}, loginMeta)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials))
}

func TestLogin_RepositoryFailure(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "ops@transit.ml").
		Return(nil, apperrors.Wrap(errors.New("conn refused"), apperrors.ErrCodeDatabaseError, "failed to scan user"))

	_, err := f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: testPassword}, loginMeta)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
	assert.Empty(t, f.audit.records)
}

func TestLogin_ThrottledPerIP(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "ops@transit.ml").Return(f.user, nil)
	f.users.On("UpdateLoginInfo", ctx, f.user.ID, mock.Anything).Return(nil)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: "bad"}, loginMeta)
		require.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials))
	}

	_, err := f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: testPassword}, loginMeta)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLoginThrottled))
	assert.Equal(t, 429, apperrors.HTTPStatusForCode(apperrors.GetCode(err)))

	other := loginMeta
	other.IPAddress = "10.0.0.10"
	_, err = f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: testPassword}, other)
	assert.NoError(t, err, "throttling is per client IP")

	f.mr.FastForward(6 * time.Minute)
	_, err = f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: testPassword}, loginMeta)
	assert.NoError(t, err)
}

func TestLogin_SuccessResetsAttempts(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "ops@transit.ml").Return(f.user, nil)
	f.users.On("UpdateLoginInfo", ctx, f.user.ID, mock.Anything).Return(nil)

	for i := 0; i < 2; i++ {
		_, _ = f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: "bad"}, loginMeta)
	}
	_, err := f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: testPassword}, loginMeta)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _ = f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: "bad"}, loginMeta)
	}
	_, err = f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: testPassword}, loginMeta)
	assert.NoError(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Logout / Authenticate
// ─────────────────────────────────────────────────────────────────────────────

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.On("GetByEmail", ctx, "ops@transit.ml").Return(f.user, nil)
	f.users.On("UpdateLoginInfo", ctx, f.user.ID, mock.Anything).Return(nil)

	res, err := f.svc.Login(ctx, LoginInput{Email: "ops@transit.ml", Password: testPassword}, loginMeta)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, res.Token, loginMeta))
	assert.Equal(t, domain.AuditLogout, f.audit.last().Action)

	_, err = f.svc.Authenticate(ctx, res.Token)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.True(t, apperrors.IsUnauthorized(f.svc.Logout(ctx, res.Token, loginMeta)))
}

func TestAuthenticate_EmptyToken(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.Authenticate(context.Background(), " ")
	assert.True(t, apperrors.IsUnauthorized(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// ChangePassword
// ─────────────────────────────────────────────────────────────────────────────

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.On("GetByID", ctx, f.user.ID).Return(f.user, nil)

	var stored string
	f.users.On("UpdatePassword", ctx, f.user.ID, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { stored = args.String(2) }).
		Return(nil)

	err := f.svc.ChangePassword(ctx, f.user.ID.String(), ChangePasswordInput{Current: testPassword, New: "Remorque42"}, loginMeta)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored), []byte("Remorque42")))
	assert.Equal(t, domain.AuditChangePassword, f.audit.last().Action)
}

func TestChangePassword_Rejections(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.users.On("GetByID", ctx, f.user.ID).Return(f.user, nil)

	tests := []struct {
		name string
		in   ChangePasswordInput
		code apperrors.ErrorCode
	}{
		{"wrong current", ChangePasswordInput{Current: "bad", New: "Remorque42"}, apperrors.ErrCodeInvalidCredentials},
		{"too short", ChangePasswordInput{Current: testPassword, New: "ab1"}, apperrors.ErrCodeWeakPassword},
		{"no digit", ChangePasswordInput{Current: testPassword, New: "remorquesansc"}, apperrors.ErrCodeWeakPassword},
		{"unchanged", ChangePasswordInput{Current: testPassword, New: testPassword}, apperrors.ErrCodeWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.ChangePassword(ctx, f.user.ID.String(), tt.in, loginMeta)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, tt.code))
		})
	}
	f.users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)

	err := f.svc.ChangePassword(ctx, "not-a-uuid", ChangePasswordInput{Current: testPassword, New: "Remorque42"}, loginMeta)
	assert.True(t, apperrors.IsValidation(err))
}
