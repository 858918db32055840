package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRequestIDGeneratedAndBound(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var ctxLogger *zerolog.Logger
	handler := RequestID()(func(c echo.Context) error {
		ctxLogger = zerolog.Ctx(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}

	id := rec.Header().Get(echo.HeaderXRequestID)
	if id == "" {
		t.Fatal("no request ID echoed to the caller")
	}
	if got, _ := c.Get("request_id").(string); got != id {
		t.Errorf("context request_id = %q, header = %q", got, id)
	}
	if ctxLogger == nil || ctxLogger.GetLevel() == zerolog.Disabled {
		t.Error("request-scoped logger not bound to the request context")
	}
}

func TestRequestIDHonorsIncoming(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-abc")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := RequestID()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := handler(c); err != nil {
		t.Fatalf("middleware returned error: %v", err)
	}
	if got := rec.Header().Get(echo.HeaderXRequestID); got != "req-abc" {
		t.Errorf("incoming request ID not preserved: %q", got)
	}
}
