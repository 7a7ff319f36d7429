package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"pointsystem/internal/metrics"
	"pointsystem/internal/repository/memory"
	"pointsystem/internal/service"
	"pointsystem/pkg/idgen"
	"pointsystem/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T, opts ...service.Option) *gin.Engine {
	t.Helper()
	ids, err := idgen.NewSnowflake(1)
	require.NoError(t, err)
	store := memory.New(ids)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	opts = append(opts, service.WithMetrics(m))
	svc := service.NewPointService(store, store, opts...)
	return SetupRouter(svc, m, reg, zap.NewNop())
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestHandler_ChargeUseAndRead(t *testing.T) {
	r := newRouter(t)

	status, env := do(t, r, http.MethodPost, "/point/1", "")
	require.Equal(t, http.StatusCreated, status)
	var opened UserPoint
	require.NoError(t, json.Unmarshal(env.Data, &opened))
	assert.Equal(t, int64(1), opened.ID)
	assert.Equal(t, int64(0), opened.Point)

	status, env = do(t, r, http.MethodPatch, "/point/1/charge", `{"amount":100}`)
	require.Equal(t, http.StatusOK, status)
	var charged PointHistory
	require.NoError(t, json.Unmarshal(env.Data, &charged))
	assert.Equal(t, int64(100), charged.Amount)
	assert.Equal(t, int64(100), charged.BalanceAfter)
	assert.Equal(t, "CHARGE", string(charged.Type))

	status, env = do(t, r, http.MethodPatch, "/point/1/use", `{"amount":30}`)
	require.Equal(t, http.StatusOK, status)
	var used PointHistory
	require.NoError(t, json.Unmarshal(env.Data, &used))
	assert.Equal(t, int64(70), used.BalanceAfter)

	status, env = do(t, r, http.MethodGet, "/point/1", "")
	require.Equal(t, http.StatusOK, status)
	var point UserPoint
	require.NoError(t, json.Unmarshal(env.Data, &point))
	assert.Equal(t, int64(70), point.Point)
	assert.Equal(t, response.CodeSuccess, env.Code)

	status, env = do(t, r, http.MethodGet, "/point/1/histories", "")
	require.Equal(t, http.StatusOK, status)
	var histories []PointHistory
	require.NoError(t, json.Unmarshal(env.Data, &histories))
	require.Len(t, histories, 2)
	assert.Equal(t, "CHARGE", string(histories[0].Type))
	assert.Equal(t, "USE", string(histories[1].Type))
	assert.Less(t, histories[0].ID, histories[1].ID)
}

func TestHandler_ErrorMapping(t *testing.T) {
	r := newRouter(t)
	_, _ = do(t, r, http.MethodPost, "/point/1", "")
	_, _ = do(t, r, http.MethodPatch, "/point/1/charge", `{"amount":10}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   int
	}{
		{"bad id", http.MethodGet, "/point/abc", "", http.StatusBadRequest, response.CodeParamError},
		{"negative id", http.MethodGet, "/point/-1", "", http.StatusBadRequest, response.CodeParamError},
		{"unknown account", http.MethodGet, "/point/2", "", http.StatusNotFound, response.CodeAccountNotFound},
		{"unknown account histories", http.MethodGet, "/point/2/histories", "", http.StatusNotFound, response.CodeAccountNotFound},
		{"charge unknown account", http.MethodPatch, "/point/2/charge", `{"amount":10}`, http.StatusNotFound, response.CodeAccountNotFound},
		{"zero amount", http.MethodPatch, "/point/1/charge", `{"amount":0}`, http.StatusBadRequest, response.CodeInvalidAmount},
		{"negative amount", http.MethodPatch, "/point/1/use", `{"amount":-5}`, http.StatusBadRequest, response.CodeInvalidAmount},
		{"missing amount", http.MethodPatch, "/point/1/charge", `{}`, http.StatusBadRequest, response.CodeParamError},
		{"malformed body", http.MethodPatch, "/point/1/charge", `{"amount":`, http.StatusBadRequest, response.CodeParamError},
		{"insufficient", http.MethodPatch, "/point/1/use", `{"amount":11}`, http.StatusBadRequest, response.CodeBalanceNotEnough},
		{"already open", http.MethodPost, "/point/1", "", http.StatusConflict, response.CodeAccountExists},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound, response.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, env.Code)
			assert.NotEmpty(t, env.Message)
		})
	}

	// failures leave the balance alone
	_, env := do(t, r, http.MethodGet, "/point/1", "")
	var point UserPoint
	require.NoError(t, json.Unmarshal(env.Data, &point))
	assert.Equal(t, int64(10), point.Point)
}

func TestHandler_BalanceLimit(t *testing.T) {
	r := newRouter(t, service.WithMaxBalance(100))
	_, _ = do(t, r, http.MethodPost, "/point/5", "")

	status, _ := do(t, r, http.MethodPatch, "/point/5/charge", `{"amount":100}`)
	require.Equal(t, http.StatusOK, status)

	status, env := do(t, r, http.MethodPatch, "/point/5/charge", `{"amount":1}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, response.CodeBalanceLimitExceeded, env.Code)
}

func TestHandler_Usable(t *testing.T) {
	r := newRouter(t)
	_, _ = do(t, r, http.MethodPost, "/point/3", "")
	_, _ = do(t, r, http.MethodPatch, "/point/3/charge", `{"amount":50}`)

	var got struct {
		Usable bool `json:"usable"`
	}

	status, env := do(t, r, http.MethodGet, "/point/3/usable?amount=50", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.Usable)

	status, env = do(t, r, http.MethodGet, "/point/3/usable?amount=51", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.False(t, got.Usable)

	status, env = do(t, r, http.MethodGet, "/point/3/usable?amount=x", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, response.CodeParamError, env.Code)

	status, env = do(t, r, http.MethodGet, "/point/3/usable?amount=0", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, response.CodeInvalidAmount, env.Code)
}

func TestHandler_ConcurrentUsesNeverOverdraw(t *testing.T) {
	r := newRouter(t)
	_, _ = do(t, r, http.MethodPost, "/point/9", "")
	_, _ = do(t, r, http.MethodPatch, "/point/9/charge", `{"amount":100}`)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _ := do(t, r, http.MethodPatch, "/point/9/use", `{"amount":10}`)
			if status == http.StatusOK {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	_, env := do(t, r, http.MethodGet, "/point/9", "")
	var point UserPoint
	require.NoError(t, json.Unmarshal(env.Data, &point))
	assert.Equal(t, int64(0), point.Point)
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	_, _ = do(t, r, http.MethodGet, "/point/1", "")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/point/:id"`)
}

func TestHandler_CORSPreflight(t *testing.T) {
	r := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/point/1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, response.CodeServerError, env.Code)
}
