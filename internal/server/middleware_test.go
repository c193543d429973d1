package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// route builds a router with mw in front of a handler echoing the auth method.
func route(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.Any("/echo", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"method": string(authMethod(c))})
	})
	r.GET("/boom", func(*gin.Context) { panic("handler failed") })
	return r
}

func send(r http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.10:4000"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	auth := NewAuthService(testKey, testSecret)
	token, _, err := auth.IssueToken(time.Hour)
	require.NoError(t, err)
	r := route(AuthMiddleware(auth))

	tests := []struct {
		name       string
		credential string
		wantCode   int
		wantBody   string
	}{
		{"api key", testKey, http.StatusOK, `"method":"api_key"`},
		{"issued token", token, http.StatusOK, `"method":"jwt"`},
		{"missing", "", http.StatusUnauthorized, ErrNoCredential.Error()},
		{"wrong", "nope", http.StatusUnauthorized, ErrBadCredential.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := map[string]string{}
			if tt.credential != "" {
				header["Authorization"] = "Bearer " + tt.credential
			}
			w := send(r, "GET", "/echo", header)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	auth := NewAuthService(testKey, testSecret)
	r := route(AuthMiddleware(auth))

	w := send(r, "GET", "/echo?token="+testKey, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_PerClientWindow(t *testing.T) {
	limiter := NewRateLimiter(3)

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Allow("10.0.0.1"))
	}
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"))

	// an expired window frees the client again
	limiter.mu.Lock()
	for i := range limiter.requests["10.0.0.1"] {
		limiter.requests["10.0.0.1"][i] = time.Now().Add(-2 * time.Second)
	}
	limiter.mu.Unlock()
	assert.True(t, limiter.Allow("10.0.0.1"))
}

func TestRateLimitMiddleware_Rejects(t *testing.T) {
	r := route(RateLimitMiddleware(NewRateLimiter(1)))

	assert.Equal(t, http.StatusOK, send(r, "GET", "/echo", nil).Code)
	w := send(r, "GET", "/echo", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestLoggerMiddleware_LogsRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	auth := NewAuthService(testKey, testSecret)
	r := route(LoggerMiddleware(zap.New(core)), AuthMiddleware(auth))

	send(r, "GET", "/echo?x=1", map[string]string{"Authorization": testKey})
	send(r, "GET", "/echo", nil)

	entries := logs.FilterMessage("request").AllUntimed()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "GET", first["method"])
	assert.Equal(t, "/echo", first["path"])
	assert.Equal(t, int64(http.StatusOK), first["status"])
	assert.Equal(t, "api_key", first["auth"])
	assert.Equal(t, "192.0.2.10", first["client"])

	second := entries[1].ContextMap()
	assert.Equal(t, int64(http.StatusUnauthorized), second["status"])
	assert.Equal(t, "", second["auth"])
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := route(CORSMiddleware([]string{"*"}))

	w := send(r, "OPTIONS", "/echo", map[string]string{"Origin": "http://dash.local"})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	methods := strings.Split(w.Header().Get("Access-Control-Allow-Methods"), ", ")
	assert.ElementsMatch(t, []string{"GET", "POST", "PUT", "OPTIONS"}, methods)
	assert.NotContains(t, methods, "DELETE")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCORSMiddleware_ListedOrigins(t *testing.T) {
	r := route(CORSMiddleware([]string{"http://dash.local", "http://127.0.0.1:3000"}))

	w := send(r, "GET", "/echo", map[string]string{"Origin": "http://127.0.0.1:3000"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://127.0.0.1:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = send(r, "GET", "/echo", map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware_Returns500(t *testing.T) {
	r := route(RecoveryMiddleware())

	var w *httptest.ResponseRecorder
	assert.NotPanics(t, func() { w = send(r, "GET", "/boom", nil) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}
