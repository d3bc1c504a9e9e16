package checkout

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/lumistore/checkout-api/internal/common"
	"github.com/lumistore/checkout-api/internal/obs"
)

// OrderRequest is the client-submitted order description. It is ephemeral and
// unvalidated beyond type coercion: a missing or non-numeric price falls back
// to the configured default instead of failing the request.
type OrderRequest struct {
	ItemPrice json.RawMessage   `json:"itemPrice"`
	ItemName  string            `json:"itemName" validate:"omitempty,max=200"`
	Metadata  map[string]string `json:"metadata" validate:"omitempty,max=20,dive,keys,max=40,endkeys,max=500"`
}

// Handler exposes the session-creation endpoint.
type Handler struct {
	Provider      Provider
	Currency      string
	PublicBaseURL string
	FallbackPrice float64
	FallbackName  string
	Validate      *validator.Validate
	Logger        zerolog.Logger
}

type sessionResp struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateSession accepts an order request, opens a hosted checkout session with
// the provider and returns the redirectable handle. Provider failures are
// reported as a generic server error with no retry.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "CHECKOUT_NOT_CONFIGURED", "checkout unavailable", nil)
		return
	}
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			if obs.CheckoutSessionsTotal != nil {
				obs.CheckoutSessionsTotal.WithLabelValues("rejected").Inc()
			}
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order request", nil)
			return
		}
	}

	price := coercePrice(req.ItemPrice, h.FallbackPrice)
	name := strings.TrimSpace(req.ItemName)
	if name == "" {
		name = h.FallbackName
	}

	session, err := h.Provider.CreateSession(r.Context(), SessionParams{
		Name:       name,
		UnitAmount: MinorUnits(price),
		Quantity:   1,
		Currency:   h.Currency,
		SuccessURL: h.PublicBaseURL + "/success.html?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  h.PublicBaseURL + "/cancel.html",
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.Logger.Error().Err(err).Str("item", name).Msg("create checkout session")
		if obs.CheckoutSessionsTotal != nil {
			obs.CheckoutSessionsTotal.WithLabelValues("failed").Inc()
		}
		common.JSONError(w, http.StatusInternalServerError, "SESSION_CREATE_FAILED", "unable to create checkout session", nil)
		return
	}
	if obs.CheckoutSessionsTotal != nil {
		obs.CheckoutSessionsTotal.WithLabelValues("created").Inc()
	}
	common.JSON(w, http.StatusOK, sessionResp{SessionID: session.ID, URL: session.URL})
}

// MinorUnits converts a major-unit price to integer minor units, rounding
// half-up to the nearest unit.
func MinorUnits(price float64) int64 {
	return int64(math.Floor(price*100 + 0.5))
}

// coercePrice accepts a JSON number or numeric string and falls back to the
// default for anything absent, malformed, or non-positive.
func coercePrice(raw json.RawMessage, fallback float64) float64 {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return fallback
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fallback
		}
		trimmed = strings.TrimSpace(s)
	}
	price, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fallback
	}
	return price
}
