package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"haven/services"
	"haven/utils"

	"github.com/gin-gonic/gin"
)

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		scope, _ := GetScope(c)
		c.String(http.StatusOK, scope)
	})
	router.GET("/api/v1/ping", handlers...)
	return router
}

func serve(router *gin.Engine, target, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	jwtService := utils.NewJWTService("secret", time.Hour)
	registry := services.NewDeviceRegistry()
	router := newTestRouter(NewAuthMiddleware(jwtService, registry).RequireAuth())

	token, _, err := jwtService.GenerateDeviceToken("device-1", "fcm-token")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"missing", "/api/v1/ping", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/v1/ping", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "/api/v1/ping", "Bearer abc", http.StatusUnauthorized},
		{"bearer", "/api/v1/ping", "Bearer " + token, http.StatusOK},
		{"query", "/api/v1/ping?token=" + token, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.target, tt.header)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status == http.StatusOK && w.Body.String() != "device-1" {
				t.Errorf("scope = %q", w.Body.String())
			}
		})
	}

	if got, ok := registry.PushToken("device-1"); !ok || got != "fcm-token" {
		t.Errorf("push token not registered: %q", got)
	}
}

func TestLocalRateLimit(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{Requests: 2, Window: time.Minute})
	router := newTestRouter(limiter.Middleware())

	for i := 0; i < 2; i++ {
		if w := serve(router, "/api/v1/ping", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
	w := serve(router, "/api/v1/ping", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("headers = %v", w.Header())
	}
}

func TestRateLimitSkipsPaths(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{Requests: 1, Window: time.Minute, SkipPaths: []string{"/api/v1/ping"}})
	router := newTestRouter(limiter.Middleware())

	for i := 0; i < 3; i++ {
		if w := serve(router, "/api/v1/ping", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
}
