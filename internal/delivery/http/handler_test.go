package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/undangke/coupon-service/internal/domain"
)

type fakeGateway struct {
	createFn   func(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error)
	validateFn func(ctx context.Context, code string, rc domain.RedeemContext) (*domain.Quote, error)
	applyFn    func(ctx context.Context, code string, rc domain.RedeemContext) (*domain.CouponUsage, error)
	detailsFn  func(ctx context.Context, code string) (*domain.CouponDetails, error)
}

func (f *fakeGateway) CreateCoupon(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error) {
	return f.createFn(ctx, c)
}

func (f *fakeGateway) ValidateCoupon(ctx context.Context, code string, rc domain.RedeemContext) (*domain.Quote, error) {
	return f.validateFn(ctx, code, rc)
}

func (f *fakeGateway) ApplyCoupon(ctx context.Context, code string, rc domain.RedeemContext) (*domain.CouponUsage, error) {
	return f.applyFn(ctx, code, rc)
}

func (f *fakeGateway) GetCouponDetails(ctx context.Context, code string) (*domain.CouponDetails, error) {
	return f.detailsFn(ctx, code)
}

type fakeAdmin struct {
	listFn      func(ctx context.Context) ([]domain.Coupon, error)
	setActiveFn func(ctx context.Context, code string, active bool) (*domain.Coupon, error)
}

func (f *fakeAdmin) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	return f.listFn(ctx)
}

func (f *fakeAdmin) SetCouponActive(ctx context.Context, code string, active bool) (*domain.Coupon, error) {
	return f.setActiveFn(ctx, code, active)
}

func newTestRouter(gw *fakeGateway, admin *fakeAdmin) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(gw, admin).Routes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return v
}

func TestCreateCoupon(t *testing.T) {
	gw := &fakeGateway{
		createFn: func(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error) {
			if c.Code != "WELCOME10" {
				t.Errorf("expected code WELCOME10, got %s", c.Code)
			}
			if c.StartsAt == nil {
				t.Error("expected starts_at to be parsed")
			}
			if !c.IsActive {
				t.Error("expected is_active to default to true")
			}
			created := *c
			created.ID = 1
			return &created, nil
		},
	}
	r := newTestRouter(gw, &fakeAdmin{})

	rec := doJSON(t, r, http.MethodPost, "/api/coupons", CreateCouponRequest{
		Code:          "WELCOME10",
		Name:          "Welcome discount",
		Type:          "percentage",
		Value:         10,
		MinimumAmount: 100000,
		StartsAt:      "2026-01-01T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[domain.Coupon](t, rec)
	if created.ID != 1 {
		t.Errorf("expected id 1, got %d", created.ID)
	}
}

func TestCreateCoupon_BadTimestamp(t *testing.T) {
	r := newTestRouter(&fakeGateway{}, &fakeAdmin{})

	rec := doJSON(t, r, http.MethodPost, "/api/coupons", CreateCouponRequest{
		Code: "X", Name: "x", Type: "fixed", Value: 1000, StartsAt: "tomorrow",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateCoupon_Duplicate(t *testing.T) {
	gw := &fakeGateway{
		createFn: func(ctx context.Context, c *domain.Coupon) (*domain.Coupon, error) {
			return nil, domain.ErrDuplicateCoupon
		},
	}
	r := newTestRouter(gw, &fakeAdmin{})

	rec := doJSON(t, r, http.MethodPost, "/api/coupons", CreateCouponRequest{
		Code: "WELCOME10", Name: "dup", Type: "percentage", Value: 10,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestValidateCoupon_Valid(t *testing.T) {
	gw := &fakeGateway{
		validateFn: func(ctx context.Context, code string, rc domain.RedeemContext) (*domain.Quote, error) {
			if rc.OrderAmount != 150000 {
				t.Errorf("expected order amount 150000, got %d", rc.OrderAmount)
			}
			c := &domain.Coupon{Code: "WELCOME10"}
			return &domain.Quote{Coupon: c, DiscountAmount: 15000, FinalAmount: 135000}, nil
		},
	}
	r := newTestRouter(gw, &fakeAdmin{})

	rec := doJSON(t, r, http.MethodPost, "/api/coupons/validate", RedeemRequest{
		Code: "WELCOME10", UserID: 7, OrderAmount: 150000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeBody[ValidateResponse](t, rec)
	if !resp.Valid {
		t.Error("expected valid=true")
	}
	if resp.DiscountAmount != 15000 || resp.FinalAmount != 135000 {
		t.Errorf("unexpected amounts: %+v", resp)
	}
}

func TestValidateCoupon_RejectionIsData(t *testing.T) {
	gw := &fakeGateway{
		validateFn: func(ctx context.Context, code string, rc domain.RedeemContext) (*domain.Quote, error) {
			rej := domain.NewRejection(domain.CodeBelowMinimum, "order amount is 50000 below the minimum")
			rej.Shortfall = 50000
			return nil, rej
		},
	}
	r := newTestRouter(gw, &fakeAdmin{})

	rec := doJSON(t, r, http.MethodPost, "/api/coupons/validate", RedeemRequest{
		Code: "WELCOME10", UserID: 7, OrderAmount: 50000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a business rejection, got %d", rec.Code)
	}
	resp := decodeBody[ValidateResponse](t, rec)
	if resp.Valid {
		t.Error("expected valid=false")
	}
	if resp.Reason != string(domain.CodeBelowMinimum) {
		t.Errorf("expected reason %s, got %s", domain.CodeBelowMinimum, resp.Reason)
	}
	if resp.Shortfall != 50000 {
		t.Errorf("expected shortfall 50000, got %d", resp.Shortfall)
	}
}

func TestApplyCoupon_Success(t *testing.T) {
	gw := &fakeGateway{
		applyFn: func(ctx context.Context, code string, rc domain.RedeemContext) (*domain.CouponUsage, error) {
			return &domain.CouponUsage{ID: 42, CouponID: 1, UserID: rc.UserID, OrderID: rc.OrderID, DiscountAmount: 15000}, nil
		},
	}
	r := newTestRouter(gw, &fakeAdmin{})

	rec := doJSON(t, r, http.MethodPost, "/api/coupons/apply", RedeemRequest{
		Code: "WELCOME10", UserID: 7, OrderID: 900, OrderAmount: 150000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	usage := decodeBody[domain.CouponUsage](t, rec)
	if usage.ID != 42 {
		t.Errorf("expected usage id 42, got %d", usage.ID)
	}
}

func TestApplyCoupon_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", domain.NewRejection(domain.CodeNotFound, "coupon not found"), http.StatusNotFound},
		{"limit reached", domain.NewRejection(domain.CodeGlobalLimitReached, "usage limit reached"), http.StatusUnprocessableEntity},
		{"expired", domain.NewRejection(domain.CodeExpired, "coupon has expired"), http.StatusUnprocessableEntity},
		{"order already redeemed", domain.ErrOrderAlreadyRedeemed, http.StatusConflict},
		{"invalid request", domain.ErrInvalidRequest, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{
				applyFn: func(ctx context.Context, code string, rc domain.RedeemContext) (*domain.CouponUsage, error) {
					return nil, tt.err
				},
			}
			r := newTestRouter(gw, &fakeAdmin{})

			rec := doJSON(t, r, http.MethodPost, "/api/coupons/apply", RedeemRequest{
				Code: "WELCOME10", UserID: 7, OrderID: 900, OrderAmount: 150000,
			})
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetCouponDetails(t *testing.T) {
	gw := &fakeGateway{
		detailsFn: func(ctx context.Context, code string) (*domain.CouponDetails, error) {
			if code != "WELCOME10" {
				t.Errorf("expected code WELCOME10, got %s", code)
			}
			return &domain.CouponDetails{
				Coupon:    &domain.Coupon{Code: "WELCOME10"},
				TimesUsed: 3,
			}, nil
		},
	}
	r := newTestRouter(gw, &fakeAdmin{})

	rec := doJSON(t, r, http.MethodGet, "/api/coupons/WELCOME10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	details := decodeBody[domain.CouponDetails](t, rec)
	if details.TimesUsed != 3 {
		t.Errorf("expected 3 uses, got %d", details.TimesUsed)
	}
}

func TestListCoupons_EmptyIsArray(t *testing.T) {
	admin := &fakeAdmin{
		listFn: func(ctx context.Context) ([]domain.Coupon, error) {
			return nil, nil
		},
	}
	r := newTestRouter(&fakeGateway{}, admin)

	rec := doJSON(t, r, http.MethodGet, "/api/coupons", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty JSON array, got %s", body)
	}
}

func TestSetCouponActive(t *testing.T) {
	admin := &fakeAdmin{
		setActiveFn: func(ctx context.Context, code string, active bool) (*domain.Coupon, error) {
			if code != "WELCOME10" || active {
				t.Errorf("unexpected args: code=%s active=%v", code, active)
			}
			return &domain.Coupon{Code: code, IsActive: active}, nil
		},
	}
	r := newTestRouter(&fakeGateway{}, admin)

	rec := doJSON(t, r, http.MethodPatch, "/api/coupons/WELCOME10/active", SetActiveRequest{Active: false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	coupon := decodeBody[domain.Coupon](t, rec)
	if coupon.IsActive {
		t.Error("expected coupon to be inactive")
	}
}
