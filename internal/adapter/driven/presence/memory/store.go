package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

// Store keeps online sets in process memory. It is meant for single-node
// development and tests; the set does not survive a restart.
type Store struct {
	mu   sync.Mutex
	sets map[string][]domain.UserID
}

var _ port.OnlineSetStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		sets: make(map[string][]domain.UserID),
	}
}

func (s *Store) AppendIfAbsent(ctx context.Context, set string, user domain.UserID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.sets[set], user) {
		return false, nil
	}
	s.sets[set] = append(s.sets[set], user)
	return true, nil
}

func (s *Store) Remove(ctx context.Context, set string, user domain.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sets[set] = slices.DeleteFunc(s.sets[set], func(u domain.UserID) bool { return u == user })
	if len(s.sets[set]) == 0 {
		delete(s.sets, set)
	}
	return nil
}

func (s *Store) List(ctx context.Context, set string) ([]domain.UserID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sets[set]), nil
}
