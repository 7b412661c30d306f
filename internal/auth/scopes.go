package auth

const (
	ScopeOpenID       = "openid"
	ScopeProfile      = "profile"
	ScopeEmail        = "email"
	ScopePromptsRead  = "prompts:read"
	ScopePromptsWrite = "prompts:write"
)

// AllScopes is the scope set requested by the Swagger UI.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopePromptsRead,
	ScopePromptsWrite,
}
