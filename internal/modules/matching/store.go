// README: Dispatch markers backed by Redis (first dispatch time, notified couriers, broadcast flag).
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch/internal/types"
)

const (
	dispatchKeyPrefix  = "matching:order:%s:dispatched_at"
	notifiedKeyPrefix  = "matching:order:%s:notified"
	broadcastKeyPrefix = "matching:order:%s:broadcast"
	// TTL for dispatch and broadcast keys (orders should resolve well within 7 days).
	keyTTL = 7 * 24 * time.Hour
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// RecordDispatch records the dispatch timestamp (first call only) and adds
// the notified couriers to the order's set.
func (s *Store) RecordDispatch(ctx context.Context, orderID types.ID, courierIDs []types.ID, at time.Time) error {
	pipe := s.redis.Pipeline()
	pipe.SetNX(ctx, dispatchedAtKey(orderID), at.UTC().Format(time.RFC3339Nano), keyTTL)
	if len(courierIDs) > 0 {
		members := make([]interface{}, len(courierIDs))
		for i, d := range courierIDs {
			members[i] = string(d)
		}
		pipe.SAdd(ctx, notifiedKey(orderID), members...)
		pipe.Expire(ctx, notifiedKey(orderID), keyTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetDispatchedAt returns when the order was first dispatched, and whether it has been dispatched.
func (s *Store) GetDispatchedAt(ctx context.Context, orderID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, dispatchedAtKey(orderID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *Store) NotifiedCouriers(ctx context.Context, orderID types.ID) (map[types.ID]bool, error) {
	members, err := s.redis.SMembers(ctx, notifiedKey(orderID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[types.ID]bool, len(members))
	for _, m := range members {
		out[types.ID(m)] = true
	}
	return out, nil
}

// MarkOrderBroadcast marks an order as having been announced to the wide radius.
func (s *Store) MarkOrderBroadcast(ctx context.Context, orderID types.ID) error {
	return s.redis.Set(ctx, broadcastKey(orderID), "1", keyTTL).Err()
}

// IsOrderBroadcast reports whether an order has been announced to the wide radius.
func (s *Store) IsOrderBroadcast(ctx context.Context, orderID types.ID) (bool, error) {
	val, err := s.redis.Get(ctx, broadcastKey(orderID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

func dispatchedAtKey(orderID types.ID) string {
	return fmt.Sprintf(dispatchKeyPrefix, string(orderID))
}

func notifiedKey(orderID types.ID) string {
	return fmt.Sprintf(notifiedKeyPrefix, string(orderID))
}

func broadcastKey(orderID types.ID) string {
	return fmt.Sprintf(broadcastKeyPrefix, string(orderID))
}
