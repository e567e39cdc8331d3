package jwt

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Claims carries the user id in the subject and the token kind, so a refresh
// token can never pass as an access token even with a shared secret.
type Claims struct {
	Kind string `json:"kind"`
	gojwt.RegisteredClaims
}

// Tokens mints and verifies HMAC signed access and refresh tokens.
type Tokens struct {
	cfg Config
	now func() time.Time
}

var _ port.TokenIssuer = (*Tokens)(nil)

func NewTokens(cfg Config) (*Tokens, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("jwt: access and refresh secrets are required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Tokens{cfg: cfg, now: time.Now}, nil
}

func (t *Tokens) IssuePair(user domain.UserID) (port.TokenPair, error) {
	access, err := t.IssueAccess(user)
	if err != nil {
		return port.TokenPair{}, err
	}
	refresh, err := t.sign(user, kindRefresh, t.cfg.RefreshSecret, t.cfg.RefreshTTL)
	if err != nil {
		return port.TokenPair{}, err
	}
	return port.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (t *Tokens) IssueAccess(user domain.UserID) (string, error) {
	return t.sign(user, kindAccess, t.cfg.AccessSecret, t.cfg.AccessTTL)
}

func (t *Tokens) VerifyAccess(token string) (domain.UserID, error) {
	return t.verify(token, kindAccess, t.cfg.AccessSecret)
}

func (t *Tokens) VerifyRefresh(token string) (domain.UserID, error) {
	return t.verify(token, kindRefresh, t.cfg.RefreshSecret)
}

func (t *Tokens) sign(user domain.UserID, kind, secret string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   user.String(),
			Issuer:    t.cfg.Issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrapf(err, "sign %s token", kind)
	}
	return signed, nil
}

func (t *Tokens) verify(token, kind, secret string) (domain.UserID, error) {
	if token == "" {
		return "", errors.Mark(errors.Newf("%s token missing", kind), domain.ErrUnauthorized)
	}
	parsed, err := gojwt.ParseWithClaims(token, &Claims{}, func(tok *gojwt.Token) (any, error) {
		if _, ok := tok.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, gojwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, gojwt.WithTimeFunc(t.now))
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "invalid %s token", kind), domain.ErrUnauthorized)
	}
	if !parsed.Valid {
		return "", errors.Mark(errors.Newf("invalid %s token", kind), domain.ErrUnauthorized)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Kind != kind || claims.Subject == "" {
		return "", errors.Mark(errors.Newf("malformed %s token", kind), domain.ErrUnauthorized)
	}
	return domain.UserID(claims.Subject), nil
}

// Verifier admits connections by access token, or by bare user id when
// AllowRawID is set (legacy clients pass ?id=<userId>).
type Verifier struct {
	tokens     port.TokenIssuer
	allowRawID bool
}

var _ port.IdentityVerifier = (*Verifier)(nil)

func NewVerifier(tokens port.TokenIssuer, allowRawID bool) *Verifier {
	return &Verifier{tokens: tokens, allowRawID: allowRawID}
}

func (v *Verifier) Verify(ctx context.Context, claim domain.IdentityClaim) (domain.UserID, error) {
	if claim.Token != "" {
		return v.tokens.VerifyAccess(claim.Token)
	}
	if v.allowRawID && !claim.UserID.IsZero() {
		return claim.UserID, nil
	}
	return "", errors.Mark(errors.New("no usable identity claim"), domain.ErrUnauthorized)
}
