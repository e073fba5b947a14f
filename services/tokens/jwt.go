package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
)

// Claims is the JWT payload minted for principals
type Claims struct {
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Role     string   `json:"role,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// ClaimsFor builds claims for p
func ClaimsFor(p *models.Principal) Claims {
	return Claims{
		Username:         p.Username,
		Email:            p.Email,
		Role:             p.Role,
		Scopes:           p.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{Subject: p.ID},
	}
}

// Principal maps verified claims to a Principal
func (c *Claims) Principal() *models.Principal {
	return models.NewPrincipal(c.Subject, c.Username, c.Email, c.Role, c.Scopes)
}

// Signer signs and verifies HMAC JWTs with one shared secret
type Signer struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	now    func() time.Time
}

// NewSigner creates a signer. An empty secret yields a signer whose every call
// fails with ErrJWTSecretMissing.
func NewSigner(secret, algorithm string) (*Signer, error) {
	var method *jwt.SigningMethodHMAC
	switch algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, services.NewDomainError(services.ErrorTypeConfiguration,
			fmt.Sprintf("unsupported JWT algorithm %q", algorithm), nil)
	}
	return &Signer{secret: []byte(secret), method: method, now: time.Now}, nil
}

// Configured reports whether a secret is set
func (s *Signer) Configured() bool {
	return len(s.secret) > 0
}

// Sign mints a token for claims. iat is always set; exp only when expiresIn is non-nil.
func (s *Signer) Sign(claims Claims, expiresIn *time.Duration) (string, error) {
	if !s.Configured() {
		return "", services.ErrJWTSecretMissing
	}
	if claims.Subject == "" {
		return "", services.NewDomainError(services.ErrorTypeValidation, "JWT subject is required", nil)
	}

	now := s.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = nil
	if expiresIn != nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(*expiresIn))
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", services.WrapInternal("failed to sign JWT", err)
	}
	return signed, nil
}

// Verify checks algorithm, signature and expiry and returns the claims
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	if !s.Configured() {
		return nil, services.ErrJWTSecretMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, services.ErrTokenExpired
		}
		return nil, services.NewUnauthorizedError("invalid_token", "invalid JWT token", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, services.ErrInvalidToken
	}
	if claims.Scopes == nil {
		claims.Scopes = []string{}
	}
	return claims, nil
}
