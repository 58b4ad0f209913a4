package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/restaurant-pos/internal/apperr"
	"github.com/vasiliy-maslov/restaurant-pos/internal/auth"
	"github.com/vasiliy-maslov/restaurant-pos/internal/catalog"
	"github.com/vasiliy-maslov/restaurant-pos/internal/events"
)

type Service interface {
	CreateOrder(ctx context.Context, in NewOrder) (*Order, error)
	CreateOrders(ctx context.Context, in []NewOrder) ([]Order, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, in OrderPatch) (*Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, filter Filter) ([]Order, error)
}

type service struct {
	repo      Repository
	menu      catalog.MenuReader
	publisher events.Publisher
}

func NewService(repo Repository, menu catalog.MenuReader, publisher events.Publisher) Service {
	return &service{
		repo:      repo,
		menu:      menu,
		publisher: publisher,
	}
}

func (s *service) CreateOrder(ctx context.Context, in NewOrder) (*Order, error) {
	o, err := in.build("")
	if err != nil {
		log.Warn().Err(err).Msg("service: rejected order")
		return nil, err
	}

	created, err := s.create(ctx, []*Order{o})
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// CreateOrders validates every spec before touching the store, then inserts
// the whole batch in one transaction.
func (s *service) CreateOrders(ctx context.Context, in []NewOrder) ([]Order, error) {
	if len(in) == 0 {
		return nil, apperr.Field("orders", "must be a non-empty array")
	}

	orders := make([]*Order, 0, len(in))
	for i, spec := range in {
		o, err := spec.build(fmt.Sprintf("orders[%d].", i))
		if err != nil {
			log.Warn().Err(err).Int("index", i).Int("batch_size", len(in)).Msg("service: rejected order batch")
			return nil, err
		}
		orders = append(orders, o)
	}

	return s.create(ctx, orders)
}

func (s *service) create(ctx context.Context, orders []*Order) ([]Order, error) {
	names := make(map[uuid.UUID]string)
	for _, o := range orders {
		if _, ok := names[o.MenuItemID]; !ok {
			item, err := s.menu.GetMenuItem(ctx, o.MenuItemID)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					log.Warn().Stringer("menu_item_id", o.MenuItemID).Msg("service: order references unknown menu item")
					return nil, err
				}
				log.Error().Err(err).Stringer("menu_item_id", o.MenuItemID).Msg("service: failed to load menu item")
				return nil, fmt.Errorf("service: failed to load menu item: %w", err)
			}
			names[o.MenuItemID] = item.Name
		}
		o.MenuItemName = names[o.MenuItemID]
	}

	if p, ok := auth.PrincipalFrom(ctx); ok {
		for _, o := range orders {
			o.CreatedBy = &p.Subject
		}
	}

	changed, err := s.repo.Create(ctx, orders)
	if err != nil {
		if apperr.IsClientError(err) {
			log.Warn().Err(err).Int("orders", len(orders)).Msg("service: order creation rolled back")
			return nil, err
		}
		log.Error().Err(err).Int("orders", len(orders)).Msg("service: failed to create orders in repository")
		return nil, fmt.Errorf("service: failed to create orders: %w", err)
	}

	created := make([]Order, 0, len(orders))
	evs := make([]events.Event, 0, len(orders)+len(changed))
	for _, o := range orders {
		created = append(created, *o)
		evs = append(evs, events.New(events.OrderCreated, o, Rooms(o)...))
	}
	evs = append(evs, TableEvents(changed)...)
	s.publisher.Publish(ctx, evs...)

	log.Info().Int("orders", len(created)).Int("tables_changed", len(changed)).Msg("service: orders created")
	return created, nil
}

func (s *service) UpdateOrder(ctx context.Context, id uuid.UUID, in OrderPatch) (*Order, error) {
	p, err := in.parse()
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, p.apply)
	if err != nil {
		if apperr.IsClientError(err) {
			log.Warn().Err(err).Stringer("order_id", id).Msg("service: order update rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to update order in repository")
		return nil, fmt.Errorf("service: failed to update order: %w", err)
	}

	s.publisher.Publish(ctx, events.New(events.OrderUpdated, updated, Rooms(updated)...))

	log.Info().Stringer("order_id", id).Stringer("status", updated.Status).Msg("service: order updated")
	return updated, nil
}

func (s *service) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	deleted, changed, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found for delete")
			return err
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to delete order in repository")
		return fmt.Errorf("service: failed to delete order: %w", err)
	}

	payload := map[string]any{"id": deleted.ID, "table_ids": deleted.TableIDs}
	evs := append([]events.Event{events.New(events.OrderDeleted, payload, Rooms(deleted)...)}, TableEvents(changed)...)
	s.publisher.Publish(ctx, evs...)

	log.Info().Stringer("order_id", id).Int("tables_changed", len(changed)).Msg("service: order deleted")
	return nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, err
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return o, nil
}

func (s *service) ListOrders(ctx context.Context, filter Filter) ([]Order, error) {
	orders, err := s.repo.List(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders in repository")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}
