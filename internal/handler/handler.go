package handler

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kopernik-pizza/internal/domain/order"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// OrderService is the order API the handler depends on.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.Request) (*order.Result, error)
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
}

var _ OrderService = (*order.Service)(nil)

// Handler serves the order HTTP API, delegating business logic to the order
// service.
type Handler struct {
	orders OrderService
}

// NewHandler constructs a Handler.
func NewHandler(orders OrderService) *Handler {
	return &Handler{orders: orders}
}

// Routes returns the API router. Mount it under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/orders", h.PlaceOrder)
	r.Get("/orders/{orderID}", h.GetOrder)
	return r
}
