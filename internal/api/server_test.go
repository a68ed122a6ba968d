package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maternal-guard-server/internal/cache"
	"github.com/maternal-guard-server/internal/domain"
	"github.com/maternal-guard-server/internal/donor"
	"github.com/maternal-guard-server/internal/feedback"
	"github.com/maternal-guard-server/internal/logging"
	"github.com/maternal-guard-server/internal/model"
	"github.com/maternal-guard-server/internal/service"
)

type testConfigManager struct {
	cfg *domain.Config
}

func (m *testConfigManager) GetConfig() *domain.Config                 { return m.cfg }
func (m *testConfigManager) GetDatabaseConfig() *domain.DatabaseConfig { return &m.cfg.Database }
func (m *testConfigManager) GetServerConfig() *domain.ServerConfig     { return &m.cfg.Server }
func (m *testConfigManager) Reload() error                             { return nil }
func (m *testConfigManager) Validate() error                           { return nil }
func (m *testConfigManager) GetDatabaseConnectionString() string       { return "" }
func (m *testConfigManager) GetRedisConnectionString() string          { return "" }
func (m *testConfigManager) IsProduction() bool                        { return false }
func (m *testConfigManager) IsDevelopment() bool                       { return true }

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := model.LoadFile("../../models/maternal_risk_model.json")
	require.NoError(t, err)

	mem, err := cache.NewMemoryCache(100, time.Hour)
	require.NoError(t, err)

	store, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := logging.Discard()
	svc := service.NewMaternalGuardService(logger,
		donor.NewSampleFilter(logger),
		service.NewRiskClassifier(logger, m, service.WithModelVersion(m.Info().Version)),
		service.WithAssessmentCache(mem),
		service.WithFeedbackStore(store),
	)

	cfg := &domain.Config{
		Server:  domain.ServerConfig{Port: 8080, RequestTimeout: 5 * time.Second},
		Logging: domain.LoggingConfig{Level: "error"},
	}
	opts = append([]ServerOption{WithModelInfo(m.Info())}, opts...)
	return NewServer(&testConfigManager{cfg: cfg}, svc, logger, opts...)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func names(t *testing.T, donors any) []string {
	t.Helper()
	out := []string{}
	for _, d := range donors.([]any) {
		out = append(out, d.(map[string]any)["name"].(string))
	}
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "maternal-risk-softmax", body["model"].(map[string]any)["name"])
	assert.Equal(t, "memory", body["cache"].(map[string]any)["backend"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestHealth_Degraded(t *testing.T) {
	s := newTestServer(t, WithHealthCheck("database", func(context.Context) error {
		return errors.New("connection refused")
	}))

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", decode(t, w)["status"])
}

func TestHealth_RedisTier(t *testing.T) {
	mem, err := cache.NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	tiered := cache.NewTieredCache(mem, cache.NewRedisCacheFromClient(client, time.Minute, logging.Discard()), logging.Discard())
	t.Cleanup(func() { tiered.Close() })

	s := newTestServer(t, WithHealthCheck("cache", tiered.Health))

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["checks"].(map[string]any)["cache"], "redis (breaker")
}

func TestBloodGroups(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodGet, "/api/v1/blood-groups", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Len(t, body["blood_groups"], 8)
	assert.Equal(t, []any{"O-"}, body["compatibility"].(map[string]any)["O-"])
}

func TestCheckDonors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		group      string
		wantNames  []string
		wantStatus int
	}{
		{"O-", []string{"Asha", "Ravi"}, http.StatusOK},
		{"ab+", []string{"Asha", "Kiran", "Meena", "Arjun", "Ravi"}, http.StatusOK},
		{"A-", []string{"Asha", "Arjun", "Ravi"}, http.StatusOK},
		{"Z+", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.group, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/api/v1/donors/check", map[string]string{"blood_group": tt.group})
			require.Equal(t, tt.wantStatus, w.Code)

			body := decode(t, w)
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, domain.ErrCodeInvalidArgument, body["code"])
				return
			}
			assert.Equal(t, tt.wantNames, names(t, body["donors"]))
			assert.Equal(t, domain.DonorCheckNotice, body["notice"])
			assert.Equal(t, "info", body["severity"])
		})
	}
}

func TestCheckDonors_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/donors/check", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/donors/check", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeRisk(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name         string
		vitals       map[string]any
		wantLevel    string
		wantSeverity string
		wantDispatch []string
	}{
		{
			name:         "low",
			vitals:       map[string]any{"age": 25, "systolic_bp": 110, "diastolic_bp": 70, "blood_sugar": 6.5, "body_temp": 98.0, "heart_rate": 70, "blood_group": "A+"},
			wantLevel:    "Low",
			wantSeverity: "success",
		},
		{
			name:         "downgraded to mid",
			vitals:       map[string]any{"age": 28, "systolic_bp": 130, "diastolic_bp": 85, "blood_sugar": 10, "body_temp": 99, "heart_rate": 85, "blood_group": "B+"},
			wantLevel:    "Mid",
			wantSeverity: "warning",
		},
		{
			name:         "high dispatches donors",
			vitals:       map[string]any{"age": 35, "systolic_bp": 160, "diastolic_bp": 110, "blood_sugar": 15, "body_temp": 101, "heart_rate": 95, "blood_group": "o-"},
			wantLevel:    "High",
			wantSeverity: "error",
			wantDispatch: []string{"Asha", "Ravi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/api/v1/risk/analyze", tt.vitals)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			body := decode(t, w)
			assessment := body["assessment"].(map[string]any)
			assert.Equal(t, tt.wantLevel, assessment["risk_level"])
			assert.Equal(t, tt.wantSeverity, body["severity"])
			assert.Len(t, assessment["feature_importance"], domain.NumFeatures)
			assert.Len(t, body["confidence_display"], 4)

			if tt.wantDispatch == nil {
				assert.Nil(t, body["emergency_dispatch"])
				return
			}
			dispatch := body["emergency_dispatch"].(map[string]any)
			assert.Equal(t, tt.wantDispatch, names(t, dispatch["donors"]))
			assert.Equal(t, "success", dispatch["severity"])
		})
	}
}

func TestAnalyzeRisk_InvalidVitals(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/risk/analyze", map[string]any{
		"age": 60, "systolic_bp": 120, "diastolic_bp": 80, "blood_sugar": 7.5,
		"body_temp": 98.6, "heart_rate": 250, "blood_group": "O+",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	assert.Equal(t, domain.ErrCodeInvalidArgument, body["code"])
	assert.Len(t, body["violations"], 2)
}

func TestFeedbackFlow(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/risk/analyze", map[string]any{
		"age": 28, "systolic_bp": 130, "diastolic_bp": 85, "blood_sugar": 10,
		"body_temp": 99, "heart_rate": 85, "blood_group": "B+",
	})
	require.Equal(t, http.StatusOK, w.Code)
	id := decode(t, w)["assessment"].(map[string]any)["id"].(string)

	w = doJSON(t, s, http.MethodGet, "/api/v1/assessments/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/feedback", map[string]string{
		"assessment_id":   id,
		"clinician_level": "High",
		"notes":           "Escalated",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	fb := decode(t, w)
	assert.Equal(t, "Mid", fb["suggested_level"])
	assert.Equal(t, true, fb["downgraded"])
	assert.Equal(t, false, fb["agreed"])

	w = doJSON(t, s, http.MethodGet, "/api/v1/feedback?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)
	assert.Equal(t, float64(1), list["total"])

	w = doJSON(t, s, http.MethodGet, "/api/v1/feedback/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["downgraded_overruled"])

	w = doJSON(t, s, http.MethodGet, "/api/v1/feedback/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "risk-feedback-")
	assert.Contains(t, w.Body.String(), id)
}

func TestImportFeedback(t *testing.T) {
	source := newTestServer(t)

	w := doJSON(t, source, http.MethodPost, "/api/v1/risk/analyze", map[string]any{
		"age": 35, "systolic_bp": 160, "diastolic_bp": 110, "blood_sugar": 15,
		"body_temp": 101, "heart_rate": 95, "blood_group": "O-",
	})
	require.Equal(t, http.StatusOK, w.Code)
	id := decode(t, w)["assessment"].(map[string]any)["id"].(string)
	w = doJSON(t, source, http.MethodPost, "/api/v1/feedback", map[string]string{"assessment_id": id, "clinician_level": "High"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = doJSON(t, source, http.MethodGet, "/api/v1/feedback/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	exported := w.Body.String()

	target := newTestServer(t)
	w = doJSON(t, target, http.MethodPost, "/api/v1/feedback/import", exported)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(1), body["imported"])
	assert.Equal(t, float64(0), body["skipped"])

	w = doJSON(t, target, http.MethodGet, "/api/v1/feedback", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["total"])

	w = doJSON(t, target, http.MethodPost, "/api/v1/feedback/import", exported)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["skipped"])

	w = doJSON(t, target, http.MethodPost, "/api/v1/feedback/import", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeedback_Errors(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/feedback", map[string]string{
		"assessment_id": "unknown", "clinician_level": "Low",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/feedback?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/assessments/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
