package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/TransitLedger/internal/application/auth"
	"github.com/turtacn/TransitLedger/internal/application/reporting"
	"github.com/turtacn/TransitLedger/internal/application/settlement"
	domain "github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/domain/user"
	"github.com/turtacn/TransitLedger/internal/interfaces/http/middleware"
)

// --- Mock settlement services ---

type mockContractService struct {
	mock.Mock
}

func (m *mockContractService) CreateContract(ctx context.Context, in settlement.CreateContractInput, meta domain.RequestMeta) (*settlement.ContractAggregate, error) {
	args := m.Called(ctx, in, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.ContractAggregate), args.Error(1)
}

func (m *mockContractService) UpdateContract(ctx context.Context, id string, in settlement.UpdateContractInput, meta domain.RequestMeta) (*domain.Contract, error) {
	args := m.Called(ctx, id, in, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *mockContractService) GetContract(ctx context.Context, id string) (*domain.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *mockContractService) DeleteContract(ctx context.Context, id string, meta domain.RequestMeta) error {
	return m.Called(ctx, id, meta).Error(0)
}

func (m *mockContractService) CancelContract(ctx context.Context, id, reason string, meta domain.RequestMeta) (*settlement.CancelContractResult, error) {
	args := m.Called(ctx, id, reason, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.CancelContractResult), args.Error(1)
}

func (m *mockContractService) BlockCaution(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Contract, error) {
	args := m.Called(ctx, id, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *mockContractService) ReleaseCaution(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Contract, error) {
	args := m.Called(ctx, id, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *mockContractService) ListEvents(ctx context.Context, entity domain.EntityType, id string) ([]*domain.Event, error) {
	args := m.Called(ctx, entity, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Event), args.Error(1)
}

type mockMissionService struct {
	mock.Mock
}

func (m *mockMissionService) GetMission(ctx context.Context, id string) (*domain.Mission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Mission), args.Error(1)
}

func (m *mockMissionService) TerminateMission(ctx context.Context, id string, in settlement.TerminateMissionInput, meta domain.RequestMeta) (*settlement.TerminateMissionResult, error) {
	args := m.Called(ctx, id, in, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.TerminateMissionResult), args.Error(1)
}

func (m *mockMissionService) CancelMission(ctx context.Context, id, reason string, meta domain.RequestMeta) (*settlement.CancelMissionResult, error) {
	args := m.Called(ctx, id, reason, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.CancelMissionResult), args.Error(1)
}

func (m *mockMissionService) RecordArrival(ctx context.Context, id string, date time.Time, meta domain.RequestMeta) (*settlement.DemurrageUpdate, error) {
	args := m.Called(ctx, id, date, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.DemurrageUpdate), args.Error(1)
}

func (m *mockMissionService) RecordUnloading(ctx context.Context, id string, date time.Time, meta domain.RequestMeta) (*settlement.DemurrageUpdate, error) {
	args := m.Called(ctx, id, date, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settlement.DemurrageUpdate), args.Error(1)
}

func (m *mockMissionService) Demurrage(ctx context.Context, id string) (domain.DemurrageResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.DemurrageResult), args.Error(1)
}

type mockPaymentService struct {
	mock.Mock
}

func (m *mockPaymentService) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentService) GetCaution(ctx context.Context, id string) (*domain.Caution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Caution), args.Error(1)
}

func (m *mockPaymentService) ValidatePayment(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Payment, error) {
	args := m.Called(ctx, id, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *mockPaymentService) RefundCaution(ctx context.Context, id string, amount decimal.Decimal, meta domain.RequestMeta) (*domain.Caution, error) {
	args := m.Called(ctx, id, amount, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Caution), args.Error(1)
}

func (m *mockPaymentService) ConsumeCaution(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Caution, error) {
	args := m.Called(ctx, id, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Caution), args.Error(1)
}

func (m *mockPaymentService) MarkCautionNotRefunded(ctx context.Context, id string, meta domain.RequestMeta) (*domain.Caution, error) {
	args := m.Called(ctx, id, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Caution), args.Error(1)
}

type mockExportService struct {
	mock.Mock
}

func (m *mockExportService) ExportContract(ctx context.Context, contractID string, meta domain.RequestMeta) (*reporting.ExportResult, error) {
	args := m.Called(ctx, contractID, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reporting.ExportResult), args.Error(1)
}

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Login(ctx context.Context, in auth.LoginInput, meta domain.RequestMeta) (*auth.LoginResult, error) {
	args := m.Called(ctx, in, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.LoginResult), args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, token string, meta domain.RequestMeta) error {
	return m.Called(ctx, token, meta).Error(0)
}

func (m *mockAuthService) ChangePassword(ctx context.Context, userID string, in auth.ChangePasswordInput, meta domain.RequestMeta) error {
	return m.Called(ctx, userID, in, meta).Error(0)
}

// --- Helpers ---

const testRemoteAddr = "10.1.2.3:5555"

var testSession = &user.Session{Token: "tok-1", UserID: "6f1c1b7e-8a55-4d7e-9a0e-1f2b3c4d5e6f", Email: "ops@transit.ml"}

// testMeta is the RequestMeta every authenticated test request carries.
var testMeta = domain.RequestMeta{Actor: "ops@transit.ml", IPAddress: "10.1.2.3", UserAgent: "handler-test"}

// serve routes one request through a chi router holding a single route, as
// an authenticated user.
func serve(t *testing.T, method, pattern, target string, h http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.RemoteAddr = testRemoteAddr
	req.Header.Set("User-Agent", "handler-test")
	req.Header.Set("Authorization", "Bearer "+testSession.Token)
	req = req.WithContext(middleware.ContextWithSession(req.Context(), testSession))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}
