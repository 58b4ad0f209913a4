package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
	"github.com/vasiliy-maslov/restaurant-pos/internal/auth"
	"github.com/vasiliy-maslov/restaurant-pos/internal/events"
	"github.com/vasiliy-maslov/restaurant-pos/internal/order"
)

type Service interface {
	Settle(ctx context.Context, req Request) (*Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, filter Filter) ([]Payment, error)
	ReceiptQRCode(ctx context.Context, id uuid.UUID) ([]byte, error)
}

type service struct {
	repo      Repository
	publisher events.Publisher
	receipts  QRGenerator
}

func NewService(repo Repository, publisher events.Publisher, receipts QRGenerator) Service {
	return &service{
		repo:      repo,
		publisher: publisher,
		receipts:  receipts,
	}
}

// BuildPayment computes the payment for orders, which must be exactly the
// orders named by req. Table ids are the union of the orders' tables in
// first-seen order.
func BuildPayment(req Request, orders []order.Order, processedBy *uuid.UUID) (*Payment, error) {
	subtotal := decimal.Zero
	tableIDs := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]bool)
	for _, o := range orders {
		subtotal = subtotal.Add(o.Price)
		for _, t := range o.TableIDs {
			if !seen[t] {
				seen[t] = true
				tableIDs = append(tableIDs, t)
			}
		}
	}

	c, err := Compute(subtotal, req)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate payment id: %w", err)
	}

	return &Payment{
		ID:           id,
		OrderIDs:     req.OrderIDs,
		TableIDs:     tableIDs,
		Methods:      req.Methods,
		Discount:     req.Discount,
		Tip:          req.Tip,
		CashReceived: req.CashReceived,
		CustomerName: req.CustomerName,
		Notes:        req.Notes,
		ProcessedBy:  processedBy,
		CreatedAt:    now(),
		Computation:  c,
	}, nil
}

func (s *service) Settle(ctx context.Context, req Request) (*Payment, error) {
	if err := req.Validate(); err != nil {
		log.Warn().Err(err).Msg("service: rejected settlement")
		return nil, err
	}

	var processedBy *uuid.UUID
	if p, ok := auth.PrincipalFrom(ctx); ok {
		processedBy = &p.Subject
	}

	p, changed, err := s.repo.Settle(ctx, req.OrderIDs, func(orders []order.Order) (*Payment, error) {
		return BuildPayment(req, orders, processedBy)
	})
	if err != nil {
		if apperr.IsClientError(err) {
			log.Warn().Err(err).Int("orders", len(req.OrderIDs)).Msg("service: settlement rejected, nothing changed")
			return nil, err
		}
		log.Error().Err(err).Int("orders", len(req.OrderIDs)).Msg("service: failed to settle payment in repository")
		return nil, fmt.Errorf("service: failed to settle payment: %w", err)
	}

	rooms := append([]string{events.RoomOrders, events.RoomManagers}, events.TableRooms(p.TableIDs)...)
	paid := events.New(events.OrderPaid, map[string]any{
		"payment_id":     p.ID,
		"order_item_ids": p.OrderIDs,
		"table_ids":      p.TableIDs,
		"total":          p.Total,
		"payment_method": p.MethodLabel(),
	}, rooms...)
	s.publisher.Publish(ctx, append([]events.Event{paid}, order.TableEvents(changed)...)...)

	log.Info().
		Stringer("payment_id", p.ID).
		Int("orders", len(p.OrderIDs)).
		Str("total", p.Total.StringFixed(2)).
		Str("change", p.Change.StringFixed(2)).
		Int("tables_freed", len(changed)).
		Msg("service: payment settled")
	return p, nil
}

func (s *service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warn().Stringer("payment_id", id).Msg("service: payment not found by id")
			return nil, err
		}
		log.Error().Err(err).Stringer("payment_id", id).Msg("service: failed to fetch payment in repository")
		return nil, fmt.Errorf("service: failed to fetch payment: %w", err)
	}
	return p, nil
}

func (s *service) ListPayments(ctx context.Context, filter Filter) ([]Payment, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, apperr.Field("from", "must be before to")
	}
	payments, err := s.repo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list payments in repository")
		return nil, fmt.Errorf("service: failed to list payments: %w", err)
	}
	return payments, nil
}

func (s *service) ReceiptQRCode(ctx context.Context, id uuid.UUID) ([]byte, error) {
	p, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	png, err := s.receipts.Generate(p)
	if err != nil {
		log.Error().Err(err).Stringer("payment_id", id).Msg("service: failed to render receipt qr code")
		return nil, fmt.Errorf("service: failed to render receipt qr code: %w", err)
	}
	return png, nil
}
