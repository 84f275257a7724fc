package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	checkouterrors "shelfwatch/internal/checkouts/errors"
	apperrors "shelfwatch/pkg/errors"
	"shelfwatch/pkg/logger"
	"shelfwatch/pkg/model"
	"shelfwatch/pkg/validator"

	"github.com/julienschmidt/httprouter"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCheckoutService struct {
	reserveFunc  func(ctx context.Context, equipmentID, personID string) (*model.Session, error)
	releaseFunc  func(ctx context.Context, sessionID string) (*model.Session, error)
	checkoutFunc func(ctx context.Context, bookID, personID string, due *time.Time) (*model.Checkout, error)
	returnFunc   func(ctx context.Context, checkoutID string) (*model.Checkout, error)
	overdueFunc  func(ctx context.Context, limit int, offset int64) ([]*model.Checkout, int64, error)
}

func (m *mockCheckoutService) Reserve(ctx context.Context, equipmentID, personID string) (*model.Session, error) {
	return m.reserveFunc(ctx, equipmentID, personID)
}

func (m *mockCheckoutService) Release(ctx context.Context, sessionID string) (*model.Session, error) {
	return m.releaseFunc(ctx, sessionID)
}

func (m *mockCheckoutService) Checkout(ctx context.Context, bookID, personID string, due *time.Time) (*model.Checkout, error) {
	return m.checkoutFunc(ctx, bookID, personID, due)
}

func (m *mockCheckoutService) ReturnBook(ctx context.Context, checkoutID string) (*model.Checkout, error) {
	return m.returnFunc(ctx, checkoutID)
}

func (m *mockCheckoutService) ListForPerson(context.Context, string) ([]*model.Checkout, error) {
	return []*model.Checkout{}, nil
}

func (m *mockCheckoutService) ListOverdue(ctx context.Context, limit int, offset int64) ([]*model.Checkout, int64, error) {
	return m.overdueFunc(ctx, limit, offset)
}

func (m *mockCheckoutService) MarkOverdue(context.Context) ([]*model.Checkout, error) {
	return []*model.Checkout{}, nil
}

func newRouter(svc *mockCheckoutService) *httprouter.Router {
	log := logger.Nop()
	router := httprouter.New()
	NewCheckoutHandler(svc, validator.New(log), log).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReserve_Created(t *testing.T) {
	var gotEquipment, gotPerson string
	router := newRouter(&mockCheckoutService{
		reserveFunc: func(_ context.Context, equipmentID, personID string) (*model.Session, error) {
			gotEquipment, gotPerson = equipmentID, personID
			return &model.Session{ID: "s1", Kind: model.SessionResource, ResourceID: equipmentID, Status: model.SessionActive}, nil
		},
	})

	rec := serve(router, http.MethodPost, "/api/v1/reservations", `{"equipment_id":"e1","person_id":"p1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "e1", gotEquipment)
	assert.Equal(t, "p1", gotPerson)
	assert.Contains(t, rec.Body.String(), `"resource_id":"e1"`)
}

func TestReserve_NotAvailableIsConflict(t *testing.T) {
	router := newRouter(&mockCheckoutService{
		reserveFunc: func(context.Context, string, string) (*model.Session, error) {
			return nil, apperrors.Conflict("Equipment is not available").WithCause(checkouterrors.ErrNotAvailable)
		},
	})

	rec := serve(router, http.MethodPost, "/api/v1/reservations", `{"equipment_id":"e1","person_id":"p1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.CodeConflict, body.Code)
	assert.Equal(t, "Equipment is not available", body.Error)
}

func TestReserve_MissingFields(t *testing.T) {
	router := newRouter(&mockCheckoutService{})

	rec := serve(router, http.MethodPost, "/api/v1/reservations", `{"equipment_id":"e1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRelease_PassesSessionID(t *testing.T) {
	router := newRouter(&mockCheckoutService{
		releaseFunc: func(_ context.Context, sessionID string) (*model.Session, error) {
			return &model.Session{ID: sessionID, Status: model.SessionCompleted}, nil
		},
	})

	rec := serve(router, http.MethodPost, "/api/v1/reservations/abc/release", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"abc"`)
}

func TestCheckout_DueDateDecoded(t *testing.T) {
	var gotDue *time.Time
	router := newRouter(&mockCheckoutService{
		checkoutFunc: func(_ context.Context, bookID, personID string, due *time.Time) (*model.Checkout, error) {
			gotDue = due
			return &model.Checkout{ID: "c1", BookID: bookID, PersonID: personID, Status: model.CheckoutActive}, nil
		},
	})

	rec := serve(router, http.MethodPost, "/api/v1/checkouts",
		`{"book_id":"b1","person_id":"p1","due_date":"2024-09-20T00:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, gotDue)
	assert.Equal(t, time.Date(2024, 9, 20, 0, 0, 0, 0, time.UTC), gotDue.UTC())
}

func TestReturn_AlreadyReturned(t *testing.T) {
	router := newRouter(&mockCheckoutService{
		returnFunc: func(context.Context, string) (*model.Checkout, error) {
			return nil, apperrors.Conflict("Checkout already returned").WithCause(checkouterrors.ErrAlreadyReturned)
		},
	})

	rec := serve(router, http.MethodPost, "/api/v1/checkouts/id/c1/return", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetOverdue_Paginated(t *testing.T) {
	router := newRouter(&mockCheckoutService{
		overdueFunc: func(_ context.Context, limit int, offset int64) ([]*model.Checkout, int64, error) {
			assert.EqualValues(t, 5, offset)
			return []*model.Checkout{{ID: "c1", Status: model.CheckoutOverdue}}, 6, nil
		},
	})

	rec := serve(router, http.MethodGet, "/api/v1/checkouts/overdue?limit=1&offset=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_count":6`)
}
