package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

// Store keeps each online set in a Redis sorted set scored by the time the
// member was first added, so listing returns members in connect order.
type Store struct {
	rdb    goredis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ port.OnlineSetStore = (*Store)(nil)

func NewStore(rdb goredis.UniversalClient, prefix string) *Store {
	return &Store{
		rdb:    rdb,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *Store) key(set string) string {
	return s.prefix + set
}

// AppendIfAbsent relies on ZADD NX, so an existing member keeps its position.
func (s *Store) AppendIfAbsent(ctx context.Context, set string, user domain.UserID) (bool, error) {
	n, err := s.rdb.ZAddNX(ctx, s.key(set), goredis.Z{
		Score:  float64(s.now().UnixMilli()),
		Member: user.String(),
	}).Result()
	if err != nil {
		return false, errors.Wrapf(err, "zadd %s", s.key(set))
	}
	return n > 0, nil
}

func (s *Store) Remove(ctx context.Context, set string, user domain.UserID) error {
	if err := s.rdb.ZRem(ctx, s.key(set), user.String()).Err(); err != nil {
		return errors.Wrapf(err, "zrem %s", s.key(set))
	}
	return nil
}

func (s *Store) List(ctx context.Context, set string) ([]domain.UserID, error) {
	members, err := s.rdb.ZRange(ctx, s.key(set), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "zrange %s", s.key(set))
	}
	users := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		users = append(users, domain.UserID(m))
	}
	return users, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
