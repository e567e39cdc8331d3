package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
	"github.com/Wyydra/yacall/internal/metrics"
)

const DefaultOnlineSet = "online-users"

type PresenceConfig struct {
	SetName         string
	OpTimeout       time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
}

func (c PresenceConfig) withDefaults() PresenceConfig {
	if c.SetName == "" {
		c.SetName = DefaultOnlineSet
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 2 * time.Second
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 50 * time.Millisecond
	}
	return c
}

// PresenceService keeps the external online set in step with connections and
// answers presence queries. The set is eventually consistent with the
// registry: failures are retried, then logged and left for the next event.
type PresenceService struct {
	store port.OnlineSetStore
	cfg   PresenceConfig
}

func NewPresenceService(store port.OnlineSetStore, cfg PresenceConfig) *PresenceService {
	return &PresenceService{
		store: store,
		cfg:   cfg.withDefaults(),
	}
}

func (s *PresenceService) SetName() string {
	return s.cfg.SetName
}

// MarkOnline appends user to the online set unless already present.
func (s *PresenceService) MarkOnline(ctx context.Context, user domain.UserID) error {
	var added bool
	err := s.do(ctx, "append", func(ctx context.Context) error {
		var err error
		added, err = s.store.AppendIfAbsent(ctx, s.cfg.SetName, user)
		return err
	})
	if err != nil {
		return err
	}
	if added {
		log.Debug().Str("user_id", user.String()).Msg("User added to online set")
	} else {
		log.Debug().Str("user_id", user.String()).Msg("User already in online set")
	}
	return nil
}

// MarkOffline removes user from the online set. Absent users are not an error.
func (s *PresenceService) MarkOffline(ctx context.Context, user domain.UserID) error {
	return s.do(ctx, "remove", func(ctx context.Context) error {
		return s.store.Remove(ctx, s.cfg.SetName, user)
	})
}

// OnlineUsers lists the online set in store order without the caller.
func (s *PresenceService) OnlineUsers(ctx context.Context, caller domain.UserID) ([]domain.UserID, error) {
	var users []domain.UserID
	err := s.do(ctx, "list", func(ctx context.Context) error {
		var err error
		users, err = s.store.List(ctx, s.cfg.SetName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lo.Filter(users, func(u domain.UserID, _ int) bool {
		return u != caller
	}), nil
}

func (s *PresenceService) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.cfg.MaxRetries), ctx)

	err := backoff.Retry(func() error {
		start := time.Now()
		opCtx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
		defer cancel()

		err := fn(opCtx)
		metrics.OnlineSetLatency.WithLabelValues(op).Observe(float64(time.Since(start)) / float64(time.Millisecond))
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		metrics.OnlineSetErrors.WithLabelValues(op).Inc()
		return errors.Mark(errors.Wrapf(err, "online set %s %q", op, s.cfg.SetName), domain.ErrStoreUnavailable)
	}
	return nil
}
