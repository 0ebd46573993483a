package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/gatherly/backend/pkg/apperr"
)

func TestErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperr.NotFound("missing"), http.StatusNotFound},
		{"forbidden", apperr.Forbidden("nope"), http.StatusForbidden},
		{"validation", apperr.Validation("bad input"), http.StatusBadRequest},
		{"invalid state", apperr.InvalidState("wrong state"), http.StatusConflict},
		{"capacity", apperr.CapacityExceeded("full"), http.StatusConflict},
		{"duplicate", apperr.AlreadyExists("dup"), http.StatusConflict},
		{"unclassified", errors.New("pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestInternalErrorHidesDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, errors.New("dial tcp 10.0.0.5:5432: connection refused"))
	if body := w.Body.String(); body == "" || body == "{}" {
		t.Fatal("expected an error body")
	}
	if got := w.Body.String(); got != `{"success":false,"error":"internal error"}` {
		t.Fatalf("body = %s", got)
	}
}
