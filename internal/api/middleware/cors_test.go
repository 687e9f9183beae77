package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/droiddeck/backend/internal/infrastructure/config"
)

func corsRouter(cfg config.CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS(cfg))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCORSReflectsConfiguredOrigin(t *testing.T) {
	router := corsRouter(config.CORSConfig{
		AllowedOrigins: []string{"http://ui.local"},
		MaxAgeHours:    1,
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://ui.local")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://ui.local" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	router := corsRouter(config.CORSConfig{
		AllowedOrigins: []string{"http://ui.local"},
		MaxAgeHours:    1,
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://elsewhere.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("disallowed origin code = %d", rec.Code)
	}
}

func TestCORSDefaultsToWildcard(t *testing.T) {
	router := corsRouter(config.CORSConfig{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("wildcard config code = %d", rec.Code)
	}
}
