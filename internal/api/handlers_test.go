package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/algoflow/subscription-service/internal/app"
	"github.com/algoflow/subscription-service/internal/store"
)

func TestRespondApprovalErrorStatusMapping(t *testing.T) {
	h := NewHandler(nil, nil, nil, 10, time.Minute)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unauthorized", err: app.ErrUnauthorized, want: http.StatusForbidden},
		{name: "subscription not found", err: store.ErrSubscriptionNotFound, want: http.StatusNotFound},
		{name: "not pending approval", err: store.ErrInvalidState, want: http.StatusConflict},
		{name: "owner missing", err: store.ErrOwnerNotFound, want: http.StatusUnprocessableEntity},
		{name: "wrapped invalid state", err: errors.Join(errors.New("context"), store.ErrInvalidState), want: http.StatusConflict},
		{name: "unknown error", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.respondApprovalError(rr, tt.err)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}
