// Package checkout turns the cart into a backend order and records it in the
// payment store. Nothing local changes unless the backend accepts the order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"telecare/internal/backend"
	"telecare/internal/cart"
	"telecare/internal/payment"
	"telecare/pkg/domain"
)

// ErrValidation marks a request rejected before any mutation. The wrapped
// domain.ValidationError names the field.
var ErrValidation = errors.New("checkout: invalid request")

// Request carries the checkout form.
type Request struct {
	PatientID    domain.ID `json:"patient_id"`
	ShippingName string    `json:"shipping_name"`
	Address      string    `json:"address"`
	Phone        string    `json:"phone"`
	Notes        string    `json:"notes,omitempty"`
}

// Validate checks required fields.
func (r Request) Validate() error {
	required := []struct{ field, value string }{
		{"patient_id", r.PatientID.String()},
		{"shipping_name", r.ShippingName},
		{"address", r.Address},
		{"phone", r.Phone},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %w", ErrValidation, domain.ValidationError{Field: f.field, Reason: "required"})
		}
	}
	return nil
}

// OrderCreator places orders. *backend.Client satisfies it.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (domain.PaymentOrder, error)
}

// Service runs checkouts for one session.
type Service struct {
	cart     *cart.Cart
	payments *payment.Store
	orders   OrderCreator
	logger   *slog.Logger
}

// NewService wires the cart, payment store and order backend.
func NewService(c *cart.Cart, p *payment.Store, orders OrderCreator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cart: c, payments: p, orders: orders, logger: logger}
}

// Checkout submits the cart. On success the order is recorded as the active
// pending order and the cart is cleared. On any failure the cart and payment
// store are left untouched; retrying reuses the same idempotency key as long
// as the cart lines are unchanged. A response arriving after ctx is done is
// not applied.
func (s *Service) Checkout(ctx context.Context, req Request) (domain.PaymentOrder, error) {
	if err := req.Validate(); err != nil {
		return domain.PaymentOrder{}, err
	}
	lines, token, err := s.cart.BeginCheckout(ctx)
	if err != nil {
		return domain.PaymentOrder{}, err
	}
	order, err := s.orders.CreateOrder(ctx, backend.CreateOrderRequest{
		PatientID: req.PatientID,
		Items:     lines,
		Shipping: backend.Shipping{
			Name:    strings.TrimSpace(req.ShippingName),
			Address: strings.TrimSpace(req.Address),
			Phone:   strings.TrimSpace(req.Phone),
		},
		Notes:          req.Notes,
		IdempotencyKey: token,
	})
	if err != nil {
		return domain.PaymentOrder{}, fmt.Errorf("checkout: %w", err)
	}
	if err := ctx.Err(); err != nil {
		s.logger.Warn("checkout response dropped", "order_id", order.ID, "error", err)
		return domain.PaymentOrder{}, err
	}
	if len(order.Items) == 0 {
		order.Items = make([]domain.OrderItem, 0, len(lines))
		for _, l := range lines {
			order.Items = append(order.Items, domain.OrderItem{ProductSlug: l.ProductSlug, Quantity: l.Quantity})
		}
	}
	order.IdempotencyKey = token
	if err := s.payments.RecordOrder(ctx, order); err != nil {
		return domain.PaymentOrder{}, fmt.Errorf("checkout: record order: %w", err)
	}
	if !s.cart.ClearCheckedOut(ctx, token) {
		s.logger.Info("cart edited during checkout; keeping lines", "order_id", order.ID)
	}
	s.logger.Info("order placed", "order_id", order.ID, "lines", len(lines))
	recorded, _ := payment.OrderByID(s.payments.State(), order.ID)
	return recorded, nil
}
