package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestHandleErrorStatus verifies domain errors map to HTTP status codes, wrapped or not.
func TestHandleErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("session: %w", ErrNotFound), http.StatusNotFound},
		{ErrInvalidArgument, http.StatusBadRequest},
		{ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("session is completed: %w", ErrInvalidState), http.StatusConflict},
		{ErrEvaluationInProgress, http.StatusConflict},
		{ErrTooManyEvaluations, http.StatusTooManyRequests},
		{fmt.Errorf("%w: timeout", ErrEvaluationUnavailable), http.StatusServiceUnavailable},
		{ErrVectorSearchUnavailable, http.StatusServiceUnavailable},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrEmailRegistered, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		w := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(w)
		ctx.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		HandleError(ctx, c.err)

		if w.Code != c.want {
			t.Fatalf("%v: expected %d, got %d", c.err, c.want, w.Code)
		}
		var body Response
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Code != c.want {
			t.Fatalf("%v: body code %d, want %d", c.err, body.Code, c.want)
		}
	}
}

// TestAcceptedCarriesPayload verifies the 202 envelope keeps data.
func TestAcceptedCarriesPayload(t *testing.T) {
	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	Accepted(ctx, "provisional", gin.H{"score": 75})

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	var body struct {
		Message string         `json:"message"`
		Data    map[string]int `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Message != "provisional" || body.Data["score"] != 75 {
		t.Fatalf("unexpected body %+v", body)
	}
}
