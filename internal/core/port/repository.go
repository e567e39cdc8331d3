package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Exists(ctx context.Context, id domain.UserID) (bool, error)
}

// OnlineSetStore persists named ordered sets of online users outside the
// process. Implementations must tolerate removing absent members.
type OnlineSetStore interface {
	AppendIfAbsent(ctx context.Context, set string, user domain.UserID) (bool, error)
	Remove(ctx context.Context, set string, user domain.UserID) error
	List(ctx context.Context, set string) ([]domain.UserID, error)
}
