package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"errormonitor/internal/apperrors"
	"errormonitor/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLogger(t *testing.T) {
	config := types.LogConfig{Level: "info"}
	middleware := Logger(config)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

	middleware(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/monitor", nil)

	RequestID()(c)

	id, exists := c.Get("request_id")
	assert.True(t, exists)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, w.Header().Get(RequestIDHeader))
}

func TestRequestID_ReusesInboundHeader(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/monitor", nil)
	c.Request.Header.Set(RequestIDHeader, "fixed-id")

	RequestID()(c)

	assert.Equal(t, "fixed-id", w.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name           string
		config         types.CORSConfig
		origin         string
		method         string
		expectedOrigin string
	}{
		{
			name:           "wildcard allows all",
			config:         types.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET"}, AllowedHeaders: []string{"*"}},
			origin:         "https://example.com",
			method:         http.MethodGet,
			expectedOrigin: "*",
		},
		{
			name:           "explicit allowlist echoes origin",
			config:         types.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://good.com"}, AllowedMethods: []string{"GET"}, AllowedHeaders: []string{"*"}, AllowCredentials: true},
			origin:         "https://good.com",
			method:         http.MethodGet,
			expectedOrigin: "https://good.com",
		},
		{
			name:           "disallowed origin gets nothing",
			config:         types.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://good.com"}, AllowedMethods: []string{"GET"}, AllowedHeaders: []string{"*"}, AllowCredentials: true},
			origin:         "https://bad.com",
			method:         http.MethodGet,
			expectedOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(tt.method, "/monitor", nil)
			c.Request.Header.Set("Origin", tt.origin)

			CORS(tt.config)(c)

			assert.Equal(t, tt.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	config := types.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET", "POST"}, AllowedHeaders: []string{"*"}}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodOptions, "/monitor", nil)
	c.Request.Header.Set("Origin", "https://example.com")

	CORS(config)(c)

	assert.Equal(t, 204, w.Code)
}

func TestAuth(t *testing.T) {
	authConfig := types.AuthConfig{Key: "secret-key"}

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"valid key", "secret-key", http.StatusOK},
		{"invalid key", "wrong-key", http.StatusUnauthorized},
		{"no key", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/monitor", nil)
			if tt.key != "" {
				c.Request.Header.Set("X-Api-Key", tt.key)
			}

			Auth(authConfig)(c)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAuth_OpenEndpointsBypassCredentials(t *testing.T) {
	authConfig := types.AuthConfig{Key: "secret-key"}

	for _, path := range []string{"/ping", "/metrics"} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, path, nil)

		Auth(authConfig)(c)

		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRecovery(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/monitor", nil)

	handler := Recovery()
	c.Set("panic-test", true)

	func() {
		defer func() { recover() }()
		handler(c)
		panic("boom")
	}()
}

func TestRateLimiter(t *testing.T) {
	config := types.PerformanceConfig{MaxConcurrentRequests: 1}
	middleware := RateLimiter(config)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/monitor", nil)

	middleware(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExtractAuthKey(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*http.Request)
		expected string
	}{
		{
			name: "query param",
			setup: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("key", "from-query")
				r.URL.RawQuery = q.Encode()
			},
			expected: "from-query",
		},
		{
			name: "bearer token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer from-bearer")
			},
			expected: "from-bearer",
		},
		{
			name: "x-api-key",
			setup: func(r *http.Request) {
				r.Header.Set("X-Api-Key", "from-header")
			},
			expected: "from-header",
		},
		{
			name:     "nothing set",
			setup:    func(r *http.Request) {},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/monitor", nil)
			tt.setup(c.Request)

			assert.Equal(t, tt.expected, extractAuthKey(c))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/monitor", nil)

	SecurityHeaders()(c)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
}

func TestRequestBodySizeLimit(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/monitor", nil)
	c.Request.ContentLength = 20 << 20

	RequestBodySizeLimit(10 << 20)(c)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestErrorHandler(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/monitor", nil)

	handler := ErrorHandler()
	c.Errors = append(c.Errors, &gin.Error{Err: apperrors.ErrNotFound})

	handler(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorHandlerNoErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/monitor", nil)

	ErrorHandler()(c)

	assert.Equal(t, http.StatusOK, w.Code)
}
