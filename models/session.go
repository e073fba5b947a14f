package models

// SessionResult is the uniform outcome of the verify, refresh and logout flows.
// The HTTP layer turns it into responses and cookies.
type SessionResult struct {
	Success      bool       `json:"success"`
	User         *Principal `json:"user,omitempty"`
	Token        string     `json:"token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresIn    int        `json:"expires_in,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// SessionFailure builds an unsuccessful result
func SessionFailure(msg string) *SessionResult {
	return &SessionResult{Success: false, Error: msg}
}
