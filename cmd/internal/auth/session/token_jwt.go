package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/security/token"
)

// Claims is the identity envelope carried by an access token.
type Claims struct {
	Username  string
	UserID    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// AccessTokenManager issues and verifies access tokens.
type AccessTokenManager interface {
	Issue(userID, username string, now time.Time) (tok string, exp time.Time, err error)
	Verify(tok string, now time.Time) (Claims, error)
}

type jwtClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

type jwtManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
	secret    []byte
}

// NewJWTManager builds an HS256 AccessTokenManager. The secret must be at least
// token.MinSecretBytes long.
func NewJWTManager(cfg Config) (AccessTokenManager, error) {
	if len(cfg.Secret) < token.MinSecretBytes || cfg.AccessTokenTTL <= 0 {
		return nil, ErrConfig
	}
	return &jwtManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    append([]byte(nil), cfg.Secret...),
	}, nil
}

func (m *jwtManager) Issue(userID, username string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	claims := jwtClaims{
		UID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *jwtManager) Verify(tok string, now time.Time) (Claims, error) {
	if tok == "" {
		return Claims{}, ErrMissingToken
	}

	var c jwtClaims
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	parsed, err := p.ParseWithClaims(tok, &c, func(*jwt.Token) (any, error) { return m.secret, nil })
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if c.Subject == "" || c.UID == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		Username: c.Subject,
		UserID:   c.UID,
		Issuer:   c.Issuer,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	return out, nil
}
