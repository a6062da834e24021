// Package api holds the JSON API handlers for the cart and checkout
// endpoints. Request bodies are typed DTOs validated up front; handlers
// never pass raw request maps into services.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukerupert/vagn/internal/domain"
	"github.com/dukerupert/vagn/internal/handler"
	"github.com/dukerupert/vagn/internal/service"
)

// CartHandler handles the /api/cart endpoints.
type CartHandler struct {
	carts    service.CartService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(carts service.CartService, validate *validator.Validate, logger *slog.Logger) *CartHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartHandler{
		carts:    carts,
		validate: validate,
		logger:   logger,
	}
}

// AddItemRequest is the body of POST /api/cart/items.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	VariantID string `json:"variant_id" validate:"omitempty,uuid"`
	Quantity  int32  `json:"quantity" validate:"required,gt=0"`
}

// UpdateItemRequest is the body of PUT /api/cart/items/{itemId}.
// Quantity zero removes the line.
type UpdateItemRequest struct {
	Quantity int32 `json:"quantity" validate:"gte=0"`
}

// MergeRequest is the body of POST /api/cart/merge. The session id names
// the guest cart being absorbed; the user comes from the caller's identity.
type MergeRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
}

// GetCart handles GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := domain.IdentityFromContext(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.ErrInvalidIdentity)
		return
	}

	view, err := h.carts.GetCart(r.Context(), identity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSONResponse(w, http.StatusOK, view)
}

// GetSummary handles GET /api/cart/summary
func (h *CartHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	identity, ok := domain.IdentityFromContext(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.ErrInvalidIdentity)
		return
	}

	summary, err := h.carts.GetSummary(r.Context(), identity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSONResponse(w, http.StatusOK, summary)
}

// AddItem handles POST /api/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := domain.IdentityFromContext(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.ErrInvalidIdentity)
		return
	}

	var req AddItemRequest
	if err := h.decode(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	productID, _ := uuid.Parse(req.ProductID)
	variantID := uuid.Nil
	if req.VariantID != "" {
		variantID, _ = uuid.Parse(req.VariantID)
	}

	view, err := h.carts.AddItem(r.Context(), identity, productID, variantID, req.Quantity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSONResponse(w, http.StatusCreated, view)
}

// UpdateItem handles PUT /api/cart/items/{itemId}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := domain.IdentityFromContext(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.ErrInvalidIdentity)
		return
	}

	itemID, err := uuid.Parse(r.PathValue("itemId"))
	if err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("cart.update_item", "invalid item id"))
		return
	}

	var req UpdateItemRequest
	if err := h.decode(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	view, err := h.carts.UpdateItem(r.Context(), identity, itemID, req.Quantity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSONResponse(w, http.StatusOK, view)
}

// RemoveItem handles DELETE /api/cart/items/{itemId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	identity, ok := domain.IdentityFromContext(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.ErrInvalidIdentity)
		return
	}

	itemID, err := uuid.Parse(r.PathValue("itemId"))
	if err != nil {
		handler.ErrorResponse(w, r, domain.Invalid("cart.remove_item", "invalid item id"))
		return
	}

	view, err := h.carts.RemoveItem(r.Context(), identity, itemID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSONResponse(w, http.StatusOK, view)
}

// ClearCart handles DELETE /api/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := domain.IdentityFromContext(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.ErrInvalidIdentity)
		return
	}

	view, err := h.carts.ClearCart(r.Context(), identity)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSONResponse(w, http.StatusOK, view)
}

// MergeCart handles POST /api/cart/merge. Only authenticated callers can
// merge; the guest session being absorbed is named in the body because the
// session cookie is already gone by the time login completes.
func (h *CartHandler) MergeCart(w http.ResponseWriter, r *http.Request) {
	identity, ok := domain.IdentityFromContext(r.Context())
	if !ok {
		handler.ErrorResponse(w, r, domain.ErrInvalidIdentity)
		return
	}
	if !identity.IsUser() {
		handler.ErrorResponse(w, r, domain.Errorf(domain.EUNAUTHORIZED, "cart.merge", "Login required to merge carts"))
		return
	}

	var req MergeRequest
	if err := h.decode(r, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	sessionID, _ := uuid.Parse(req.SessionID)

	view, err := h.carts.MergeCarts(r.Context(), identity.UserID, sessionID)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.JSONResponse(w, http.StatusOK, view)
}

// decode unmarshals and validates a request body into a typed DTO.
func (h *CartHandler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Invalid("", "invalid request body")
	}
	if err := h.validate.Struct(v); err != nil {
		return domain.WrapError(err, domain.EINVALID, "", "request failed validation")
	}
	return nil
}
