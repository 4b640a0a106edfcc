package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "collecta/pkg/domain"
	dErrors "collecta/pkg/domain-errors"
)

// Claims are the access token claims. The subject is the acting ActorID.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// JWTService issues and validates HS256 access tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

func NewJWTService(signingKey string, issuer string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
}

// GenerateAccessToken signs a token for actor. Operators use it to mint
// tokens for scripts; interactive users get theirs from the identity provider.
func (s *JWTService) GenerateAccessToken(actor id.ActorID, name string, expiresIn time.Duration) (string, error) {
	if actor.IsNil() {
		return "", dErrors.New(dErrors.CodeBadRequest, "tokens cannot be issued for the system actor")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ExtractActorID validates the token and parses its subject.
func (s *JWTService) ExtractActorID(tokenString string) (id.ActorID, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return id.ActorID{}, err
	}
	actor, err := id.ParseActorID(claims.Subject)
	if err != nil {
		return id.ActorID{}, dErrors.New(dErrors.CodeUnauthorized, "token subject is not an actor id")
	}
	return actor, nil
}
