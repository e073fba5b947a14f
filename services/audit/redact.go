package audit

import (
	"regexp"
	"sort"

	"github.com/upb/mcp-auth-gateway/models"
)

// RedactedPlaceholder replaces credential material in audit text
const RedactedPlaceholder = "[REDACTED]"

// CredentialKind names a class of credential the redactor recognises
type CredentialKind string

const (
	CredentialJWT         CredentialKind = "jwt"
	CredentialBearer      CredentialKind = "bearer"
	CredentialAssignment  CredentialKind = "assignment"
	CredentialPrivateKey  CredentialKind = "private_key"
	CredentialAWSKey      CredentialKind = "aws_key"
	CredentialGitHubToken CredentialKind = "github_token"
	CredentialProviderKey CredentialKind = "provider_key"
	CredentialDatabaseURL CredentialKind = "database_url"
)

type credentialPattern struct {
	kind CredentialKind
	re   *regexp.Regexp
	// group is the submatch that holds the credential; 0 redacts the whole match
	group int
}

var credentialPatterns = []credentialPattern{
	{CredentialJWT, regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+`), 0},
	{CredentialBearer, regexp.MustCompile(`(?i)\bbearer\s+([A-Za-z0-9_\-\.=]{16,})`), 1},
	{CredentialAssignment, regexp.MustCompile(`(?i)\b(?:api[_\-]?key|access[_\-]?token|refresh[_\-]?token|token|password|secret)\s*[:=]\s*([^\s'",;]{8,})`), 1},
	{CredentialPrivateKey, regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+|EC\s+|DSA\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`), 0},
	{CredentialAWSKey, regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), 0},
	{CredentialGitHubToken, regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`), 0},
	{CredentialProviderKey, regexp.MustCompile(`\b(?:sk-ant-[A-Za-z0-9\-]{32,}|sk-[A-Za-z0-9]{32,}|sk_(?:live|test)_[0-9a-zA-Z]{24,}|xox[baprs]-[A-Za-z0-9\-]{10,})`), 0},
	{CredentialDatabaseURL, regexp.MustCompile(`(?i)\b(?:postgres|postgresql|mysql|mongodb|redis)://[^\s'"/:@]+:([^\s'"@]+)@`), 1},
}

type span struct{ start, end int }

// Redact replaces credential material in text and reports which kinds were found
func Redact(text string) (string, []CredentialKind) {
	if text == "" {
		return text, nil
	}

	var spans []span
	var kinds []CredentialKind
	for _, p := range credentialPatterns {
		matches := p.re.FindAllStringSubmatchIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		kinds = append(kinds, p.kind)
		for _, m := range matches {
			start, end := m[2*p.group], m[2*p.group+1]
			if start < 0 {
				continue
			}
			spans = append(spans, span{start, end})
		}
	}
	if len(spans) == 0 {
		return text, nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	out := make([]byte, 0, len(text))
	cursor := 0
	for _, s := range spans {
		if s.end <= cursor {
			continue
		}
		if s.start < cursor {
			s.start = cursor
		}
		out = append(out, text[cursor:s.start]...)
		out = append(out, RedactedPlaceholder...)
		cursor = s.end
	}
	out = append(out, text[cursor:]...)
	return string(out), kinds
}

// redactEntry scrubs the free-text fields of an event before it reaches a sink
func redactEntry(log *models.AuditLog) {
	if log.Reason != nil {
		if cleaned, kinds := Redact(*log.Reason); len(kinds) > 0 {
			log.Reason = &cleaned
		}
	}
	if log.Resource != nil {
		if cleaned, kinds := Redact(*log.Resource); len(kinds) > 0 {
			log.Resource = &cleaned
		}
	}
}
