package session

import "github.com/upb/mcp-auth-gateway/models"

// PrincipalFromProvider maps a Privy user document to a Principal. The
// username is the email, else the shortened wallet address. Users are
// role "user" unless custom_metadata.role says "admin".
func PrincipalFromProvider(userID string, doc map[string]interface{}) *models.Principal {
	id := stringField(doc, "id")
	if id == "" {
		id = userID
	}

	email := stringField(nested(doc, "email"), "address")
	username := email
	if username == "" {
		if wallet := stringField(nested(doc, "wallet"), "address"); wallet != "" {
			username = shortenWallet(wallet)
		}
	}

	role := models.RoleUser
	if stringField(nested(doc, "custom_metadata"), "role") == models.RoleAdmin {
		role = models.RoleAdmin
	}
	scopes := []string{models.ScopeMCPAccess}
	if role == models.RoleAdmin {
		scopes = append(scopes, models.ScopeMCPAdmin)
	}

	return models.NewPrincipal(id, username, email, role, scopes)
}

func shortenWallet(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func nested(doc map[string]interface{}, key string) map[string]interface{} {
	m, _ := doc[key].(map[string]interface{})
	return m
}

func stringField(doc map[string]interface{}, key string) string {
	s, _ := doc[key].(string)
	return s
}
