package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"restaurant_order_service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUseCase struct {
	group   *domain.OrderGroup
	groups  []*domain.OrderGroup
	all     map[int64]*domain.OrderGroup
	report  *domain.DailyReport
	deleted bool
	err     error
}

func (s *stubUseCase) CreateOrderLine(context.Context, domain.LineRequest) (*domain.OrderGroup, error) {
	return s.group, s.err
}

func (s *stubUseCase) GetGroup(context.Context, int64) (*domain.OrderGroup, error) {
	return s.group, s.err
}

func (s *stubUseCase) GetLatestGroupForUser(context.Context, string) (*domain.OrderGroup, error) {
	return s.group, s.err
}

func (s *stubUseCase) ListAllGroups(context.Context) (map[int64]*domain.OrderGroup, error) {
	return s.all, s.err
}

func (s *stubUseCase) ListTodayUnpaidGroups(context.Context) (*domain.DailyReport, error) {
	return s.report, s.err
}

func (s *stubUseCase) UpdateGroupState(context.Context, int64, domain.OrderState) (*domain.OrderGroup, error) {
	return s.group, s.err
}

func (s *stubUseCase) UpdateGroupStateByUser(context.Context, string, domain.OrderState) ([]*domain.OrderGroup, error) {
	return s.groups, s.err
}

func (s *stubUseCase) UpdateLine(context.Context, int64, string, domain.LineChanges) (*domain.OrderGroup, error) {
	return s.group, s.err
}

func (s *stubUseCase) DeleteGroup(context.Context, int64) (bool, error) {
	return s.deleted, s.err
}

func newTestRouter(uc domain.OrderUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	router := gin.New()
	NewOrderHandler(uc, logger).RegisterRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderLineCreated(t *testing.T) {
	uc := &stubUseCase{group: &domain.OrderGroup{ID: 100001, State: domain.StatePendiente}}
	router := newTestRouter(uc)

	rec := doJSON(router, http.MethodPost, "/orders/create", gin.H{
		"user_id":      "user-1",
		"user_name":    "Santiago",
		"address":      "Calle 10 #5-23",
		"product_name": "Bandeja Paisa",
		"quantity":     1,
		"price":        25,
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Success", resp.Status)
}

func TestCreateOrderLineValidationFailure(t *testing.T) {
	uc := &stubUseCase{err: domain.NewValidationError("quantity", "must be positive")}
	router := newTestRouter(uc)

	rec := doJSON(router, http.MethodPost, "/orders/create", gin.H{"user_id": "user-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGroupInvalidID(t *testing.T) {
	router := newTestRouter(&stubUseCase{})

	rec := doJSON(router, http.MethodGet, "/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGroupNotFound(t *testing.T) {
	uc := &stubUseCase{err: fmt.Errorf("group 100009: %w", domain.ErrNotFound)}
	router := newTestRouter(uc)

	rec := doJSON(router, http.MethodGet, "/orders/100009", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateProductOnClosedGroupConflicts(t *testing.T) {
	uc := &stubUseCase{err: fmt.Errorf("group 100001 is completado: %w", domain.ErrGroupClosed)}
	router := newTestRouter(uc)

	rec := doJSON(router, http.MethodPut, "/orders/update_product", gin.H{
		"group_id":     100001,
		"product_name": "Sopa",
		"quantity":     2,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateStateInvalidTransitionConflicts(t *testing.T) {
	uc := &stubUseCase{err: fmt.Errorf("group 100001: pagado -> pendiente: %w", domain.ErrInvalidTransition)}
	router := newTestRouter(uc)

	rec := doJSON(router, http.MethodPut, "/orders/update_state", gin.H{
		"order_id": 100001,
		"state":    "pendiente",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteGroupNotFound(t *testing.T) {
	router := newTestRouter(&stubUseCase{deleted: false})

	rec := doJSON(router, http.MethodDelete, "/orders/100001", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteGroupOK(t *testing.T) {
	router := newTestRouter(&stubUseCase{deleted: true})

	rec := doJSON(router, http.MethodDelete, "/orders/100001", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTodayReportPayload(t *testing.T) {
	uc := &stubUseCase{report: &domain.DailyReport{
		Stats: domain.DailyStats{TotalOrders: 2, PendingOrders: 1, CompleteOrders: 1, TotalSales: 5},
		Orders: []*domain.OrderGroup{
			{ID: 100001, State: domain.StatePendiente},
			{ID: 100002, State: domain.StateCompletado},
		},
	}}
	router := newTestRouter(uc)

	rec := doJSON(router, http.MethodGet, "/orders/today", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data domain.DailyReport `json:"Data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Stats.TotalOrders)
	assert.Equal(t, 5.0, resp.Data.Stats.TotalSales)
	require.Len(t, resp.Data.Orders, 2)
}

func TestTransientErrorMapsToServiceUnavailable(t *testing.T) {
	uc := &stubUseCase{err: &domain.TransientError{Op: "create order line", Err: fmt.Errorf("deadlock detected")}}
	router := newTestRouter(uc)

	rec := doJSON(router, http.MethodPost, "/orders/create", gin.H{"user_id": "user-1"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
