package models

// Well-known roles and scopes
const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	ScopeWildcard   = "*"
	ScopeMCPAccess  = "mcp:access"
	ScopeMCPAdmin   = "mcp:admin"
	ScopeRefresh    = "auth:refresh"
	ScopeSecretsRW  = "admin:secrets"
	ScopeTokensRW   = "admin:tokens"
	ScopeSecretRead = "secrets:read"
)

// Principal is the authenticated identity attached to a request.
// Values are treated as immutable once built; use NewPrincipal so Scopes is never nil.
type Principal struct {
	ID       string   `json:"id"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Role     string   `json:"role,omitempty"`
	Scopes   []string `json:"scopes"`
}

// NewPrincipal creates a Principal, copying scopes so callers cannot alias them
func NewPrincipal(id, username, email, role string, scopes []string) *Principal {
	copied := make([]string, len(scopes))
	copy(copied, scopes)
	return &Principal{
		ID:       id,
		Username: username,
		Email:    email,
		Role:     role,
		Scopes:   copied,
	}
}

// DevPrincipal is the synthetic identity returned when authentication is bypassed
func DevPrincipal() *Principal {
	return NewPrincipal("dev", "developer", "", RoleAdmin, []string{ScopeWildcard})
}

// HasScope reports whether the principal holds scope, directly or via the wildcard
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope || s == ScopeWildcard {
			return true
		}
	}
	return false
}

// MissingScope returns the first required scope the principal lacks.
// An empty required list, or a wildcard holder, never misses anything.
func (p *Principal) MissingScope(required []string) (string, bool) {
	for _, scope := range required {
		if !p.HasScope(scope) {
			return scope, true
		}
	}
	return "", false
}

// IsAdmin returns true if the principal has admin role
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// DisplayName returns the username when set, otherwise the ID
func (p *Principal) DisplayName() string {
	if p.Username != "" {
		return p.Username
	}
	return p.ID
}
