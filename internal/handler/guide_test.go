package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cahierdetextes/backend/internal/service"
	"github.com/gin-gonic/gin"
)

func newGuideRouter(source func() ([]byte, error)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewGuideHandler(service.NewGuideService(source)).RegisterRoutes(router.Group("/api"))
	return router
}

func TestGuideHandler_Get(t *testing.T) {
	router := newGuideRouter(func() ([]byte, error) {
		return []byte("# Guide\n\nAppuyez sur **Ctrl+Z**."), nil
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/guide", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("unexpected content type: %s", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "<strong>Ctrl+Z</strong>") {
		t.Fatalf("expected rendered html, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/guide?format=md", nil))
	if !strings.HasPrefix(w.Body.String(), "# Guide") {
		t.Fatalf("expected markdown source, got %s", w.Body.String())
	}
}

func TestGuideHandler_SourceError(t *testing.T) {
	router := newGuideRouter(func() ([]byte, error) {
		return nil, errors.New("missing")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/guide", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
}
