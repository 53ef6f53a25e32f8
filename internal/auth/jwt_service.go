package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/charlesng35/authcore/internal/models"
)

// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
const DefaultAccessTokenTTL = 15 * time.Minute

// Verification failures. Underlying jwt errors stay reachable through errors.Is.
var (
	ErrTokenMalformed        = errors.New("jwt: malformed token")
	ErrTokenSignatureInvalid = errors.New("jwt: invalid signature")
	ErrTokenClaimsInvalid    = errors.New("jwt: invalid claims")
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	Clock          func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs. The registered subject
// carries the account email.
type Claims struct {
	UserID   string         `json:"uid,omitempty"`
	Roles    []string       `json:"roles,omitempty"`
	Metadata map[string]any `json:"meta,omitempty"`
	jwt.RegisteredClaims
}

// VerifiedToken is the outcome of Verify. Expired tokens still carry their claims.
type VerifiedToken struct {
	Subject   string
	Claims    *Claims
	ExpiresAt time.Time
	Expired   bool
}

// JWTService signs and verifies HS256 bearer tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    now,
	}, nil
}

// SecretLength reports the signing secret length in bytes.
func (s *JWTService) SecretLength() int {
	return len(s.secret)
}

// AccessTokenTTL reports the lifetime used by IssueAccessToken.
func (s *JWTService) AccessTokenTTL() time.Duration {
	return s.ttl
}

// Issue signs a token for subject carrying claims and expiring after ttl.
func (s *JWTService) Issue(subject string, claims Claims, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("jwt: subject is required")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}

	now := s.now()
	out := claims
	out.Roles = append([]string(nil), claims.Roles...)
	out.Metadata = cloneMetadata(claims.Metadata)
	out.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		Audience:  claims.Audience,
		ID:        claims.ID,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &out)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// IssueAccessToken issues a short-lived token for the user with its id and roles.
func (s *JWTService) IssueAccessToken(user *models.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("jwt: user id is required")
	}
	return s.Issue(user.Email, Claims{UserID: user.ID, Roles: user.RoleNames()}, s.ttl)
}

// Verify checks the signature and claims of tokenString. A correctly signed token past
// its expiry returns its claims with Expired set and a nil error.
func (s *JWTService) Verify(tokenString string) (*VerifiedToken, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: token string is empty", ErrTokenMalformed)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})

	expired := false
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		// Claims are only validated after the signature, so the payload is trustworthy.
		expired = true
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, fmt.Errorf("%w: %w", ErrTokenSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrTokenClaimsInvalid, err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenClaimsInvalid)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenClaimsInvalid)
	}

	verified := &VerifiedToken{
		Subject: claims.Subject,
		Claims:  &claims,
		Expired: expired,
	}
	if claims.ExpiresAt != nil {
		verified.ExpiresAt = claims.ExpiresAt.Time
	}
	return verified, nil
}

// IsValid reports whether the token is correctly signed and not expired.
func (s *JWTService) IsValid(tokenString string) bool {
	verified, err := s.Verify(tokenString)
	return err == nil && !verified.Expired
}

// ValidateAccessToken returns the claims of a valid, unexpired access token.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	verified, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if verified.Expired {
		return nil, fmt.Errorf("%w: %w", ErrTokenClaimsInvalid, jwt.ErrTokenExpired)
	}
	if verified.Claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id claim", ErrTokenClaimsInvalid)
	}
	return verified.Claims, nil
}

// cloneMetadata guards against accidental external mutation of stored metadata.
func cloneMetadata(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}

	cpy := make(map[string]any, len(meta))
	for k, v := range meta {
		cpy[k] = v
	}
	return cpy
}
