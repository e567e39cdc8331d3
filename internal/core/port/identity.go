package port

import (
	"context"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// IdentityVerifier turns the claim presented at connection time into a user
// id. Any failure is reported as domain.ErrUnauthorized.
type IdentityVerifier interface {
	Verify(ctx context.Context, claim domain.IdentityClaim) (domain.UserID, error)
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type TokenIssuer interface {
	IssuePair(user domain.UserID) (TokenPair, error)
	IssueAccess(user domain.UserID) (string, error)
	VerifyAccess(token string) (domain.UserID, error)
	VerifyRefresh(token string) (domain.UserID, error)
}
