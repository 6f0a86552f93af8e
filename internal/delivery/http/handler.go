package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/undangke/coupon-service/internal/domain"
	"github.com/undangke/coupon-service/internal/usecase"
)

type CreateCouponRequest struct {
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	Description        string  `json:"description,omitempty"`
	Type               string  `json:"type"`
	Value              int64   `json:"value"`
	MinimumAmount      int64   `json:"minimum_amount,omitempty"`
	MaximumDiscount    int64   `json:"maximum_discount,omitempty"`
	UsageLimit         int     `json:"usage_limit,omitempty"`
	UserLimit          int     `json:"user_limit,omitempty"`
	StartsAt           string  `json:"starts_at,omitempty"` // RFC3339
	ExpiresAt          string  `json:"expires_at,omitempty"`
	IsActive           *bool   `json:"is_active,omitempty"`
	ApplicablePackages []int64 `json:"applicable_packages,omitempty"`
	ApplicableUsers    []int64 `json:"applicable_users,omitempty"`
}

type RedeemRequest struct {
	Code        string `json:"code"`
	UserID      int64  `json:"user_id"`
	OrderID     int64  `json:"order_id,omitempty"`
	OrderAmount int64  `json:"order_amount"`
	PackageID   int64  `json:"package_id"`
}

type ValidateResponse struct {
	Valid          bool           `json:"valid"`
	Reason         string         `json:"reason,omitempty"`
	Message        string         `json:"message,omitempty"`
	Shortfall      int64          `json:"shortfall,omitempty"`
	Limit          int            `json:"limit,omitempty"`
	DiscountAmount int64          `json:"discount_amount,omitempty"`
	FinalAmount    int64          `json:"final_amount,omitempty"`
	Coupon         *domain.Coupon `json:"coupon,omitempty"`
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

type Handler struct {
	gateway usecase.CouponGateway
	admin   usecase.CouponAdmin
}

func NewHandler(gateway usecase.CouponGateway, admin usecase.CouponAdmin) *Handler {
	return &Handler{gateway: gateway, admin: admin}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/coupons", func(r chi.Router) {
		r.Post("/", h.CreateCoupon)
		r.Get("/", h.ListCoupons)
		r.Post("/validate", h.ValidateCoupon)
		r.Post("/apply", h.ApplyCoupon)
		r.Get("/{code}", h.GetCouponDetails)
		r.Patch("/{code}/active", h.SetCouponActive)
	})
}

func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req CreateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	coupon, err := couponFromRequest(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	created, err := h.gateway.CreateCoupon(r.Context(), coupon)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateCoupon):
			writeJSON(w, http.StatusConflict, errorResponse{Error: "coupon already exists"})
		case errors.Is(err, domain.ErrInvalidRequest):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// ValidateCoupon reports redeemability as data: business rejections come back
// as 200 with valid=false so checkout UIs can render the reason directly.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	quote, err := h.gateway.ValidateCoupon(r.Context(), req.Code, redeemContext(req))
	if err != nil {
		if rej, ok := domain.AsRejection(err); ok {
			writeJSON(w, http.StatusOK, ValidateResponse{
				Valid:     false,
				Reason:    string(rej.Code),
				Message:   rej.Message,
				Shortfall: rej.Shortfall,
				Limit:     rej.Limit,
			})
			return
		}
		if errors.Is(err, domain.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{
		Valid:          true,
		DiscountAmount: quote.DiscountAmount,
		FinalAmount:    quote.FinalAmount,
		Coupon:         quote.Coupon,
	})
}

func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	usage, err := h.gateway.ApplyCoupon(r.Context(), req.Code, redeemContext(req))
	if err != nil {
		h.writeRedeemError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, usage)
}

func (h *Handler) GetCouponDetails(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	details, err := h.gateway.GetCouponDetails(r.Context(), code)
	if err != nil {
		h.writeRedeemError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.admin.ListCoupons(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if coupons == nil {
		coupons = []domain.Coupon{}
	}
	writeJSON(w, http.StatusOK, coupons)
}

func (h *Handler) SetCouponActive(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	coupon, err := h.admin.SetCouponActive(r.Context(), code, req.Active)
	if err != nil {
		h.writeRedeemError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, coupon)
}

func (h *Handler) writeRedeemError(w http.ResponseWriter, err error) {
	if rej, ok := domain.AsRejection(err); ok {
		status := http.StatusUnprocessableEntity
		if rej.Code == domain.CodeNotFound {
			status = http.StatusNotFound
		}
		writeJSON(w, status, errorResponse{
			Error:   rej.Message,
			Reason:  string(rej.Code),
			Message: rej.Message,
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrOrderAlreadyRedeemed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func redeemContext(req RedeemRequest) domain.RedeemContext {
	return domain.RedeemContext{
		UserID:      req.UserID,
		OrderID:     req.OrderID,
		OrderAmount: req.OrderAmount,
		PackageID:   req.PackageID,
	}
}

func couponFromRequest(req CreateCouponRequest) (*domain.Coupon, error) {
	startsAt, err := parseTimeOrEmpty(req.StartsAt)
	if err != nil {
		return nil, errors.New("invalid starts_at; use RFC3339")
	}
	expiresAt, err := parseTimeOrEmpty(req.ExpiresAt)
	if err != nil {
		return nil, errors.New("invalid expires_at; use RFC3339")
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	return &domain.Coupon{
		Code:               req.Code,
		Name:               req.Name,
		Description:        req.Description,
		Type:               domain.DiscountType(req.Type),
		Value:              req.Value,
		MinimumAmount:      req.MinimumAmount,
		MaximumDiscount:    req.MaximumDiscount,
		UsageLimit:         req.UsageLimit,
		UserLimit:          req.UserLimit,
		StartsAt:           startsAt,
		ExpiresAt:          expiresAt,
		IsActive:           isActive,
		ApplicablePackages: req.ApplicablePackages,
		ApplicableUsers:    req.ApplicableUsers,
	}, nil
}

func parseTimeOrEmpty(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
