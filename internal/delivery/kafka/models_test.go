package kafka

import (
	"errors"
	"fmt"
	"testing"

	"github.com/undangke/coupon-service/internal/domain"
)

func TestErrorRoundTrip_Rejection(t *testing.T) {
	rej := domain.NewRejection(domain.CodeBelowMinimum, "order amount 50000 is below the 100000 minimum for coupon WELCOME10")
	rej.Shortfall = 50000

	resp := errorResponseFor("corr-1", rej)
	if resp.Status != StatusError {
		t.Errorf("expected status %s, got %s", StatusError, resp.Status)
	}
	if resp.ErrorCode != string(domain.CodeBelowMinimum) {
		t.Errorf("expected error code %s, got %s", domain.CodeBelowMinimum, resp.ErrorCode)
	}

	back, ok := domain.AsRejection(errorFromResponse(resp))
	if !ok {
		t.Fatal("expected a rejection on the way back")
	}
	if back.Code != domain.CodeBelowMinimum {
		t.Errorf("expected code %s, got %s", domain.CodeBelowMinimum, back.Code)
	}
	if back.Shortfall != 50000 {
		t.Errorf("expected shortfall 50000, got %d", back.Shortfall)
	}
	if back.Message != rej.Message {
		t.Errorf("expected message %q, got %q", rej.Message, back.Message)
	}
}

func TestErrorRoundTrip_Sentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantIs   error
	}{
		{"duplicate coupon", domain.ErrDuplicateCoupon, ErrCodeDuplicateCoupon, domain.ErrDuplicateCoupon},
		{"order already redeemed", domain.ErrOrderAlreadyRedeemed, ErrCodeOrderAlreadyRedeemed, domain.ErrOrderAlreadyRedeemed},
		{"invalid request", fmt.Errorf("%w: missing user id", domain.ErrInvalidRequest), ErrCodeInvalidRequest, domain.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := errorResponseFor("corr-2", tt.err)
			if resp.ErrorCode != tt.wantCode {
				t.Errorf("expected error code %s, got %s", tt.wantCode, resp.ErrorCode)
			}
			if !errors.Is(errorFromResponse(resp), tt.wantIs) {
				t.Errorf("expected %v on the way back", tt.wantIs)
			}
		})
	}
}

func TestErrorRoundTrip_InternalError(t *testing.T) {
	resp := errorResponseFor("corr-3", errors.New("connection refused"))
	if resp.ErrorCode != ErrCodeInternalError {
		t.Errorf("expected error code %s, got %s", ErrCodeInternalError, resp.ErrorCode)
	}

	err := errorFromResponse(resp)
	if _, ok := domain.AsRejection(err); ok {
		t.Error("an internal error must not come back as a rejection")
	}
	if err.Error() != "connection refused" {
		t.Errorf("expected original message, got %q", err.Error())
	}
}

func TestSuccessResponse(t *testing.T) {
	resp := successResponse("corr-4")
	if resp.Status != StatusSuccess || resp.CorrelationID != "corr-4" || resp.SchemaVersion != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}
