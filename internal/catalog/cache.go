package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CachedMenu is a read-through redis cache in front of a MenuReader.
// Cache failures fall back to the underlying reader.
type CachedMenu struct {
	next   MenuReader
	client *redis.Client
	ttl    time.Duration
}

func NewCachedMenu(next MenuReader, client *redis.Client, ttl time.Duration) *CachedMenu {
	return &CachedMenu{next: next, client: client, ttl: ttl}
}

func (c *CachedMenu) key(id uuid.UUID) string {
	return "menu_item:" + id.String()
}

func (c *CachedMenu) GetMenuItem(ctx context.Context, id uuid.UUID) (*MenuItem, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var item MenuItem
		if err := json.Unmarshal(raw, &item); err == nil {
			return &item, nil
		}
		log.Warn().Stringer("menu_item_id", id).Msg("catalog: dropping undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Stringer("menu_item_id", id).Msg("catalog: menu cache read failed")
	}

	item, err := c.next.GetMenuItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(item); err == nil {
		if err := c.client.Set(ctx, c.key(id), payload, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Stringer("menu_item_id", id).Msg("catalog: menu cache write failed")
		}
	}
	return item, nil
}

// Invalidate drops the cached entry for id.
func (c *CachedMenu) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, c.key(id)).Err()
}
