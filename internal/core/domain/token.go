package domain

// Token type discriminator carried in the token_type claim. A refresh token is
// never accepted where an access token is expected and vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenPair bundles the credentials returned by login and refresh flows.
type TokenPair struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}
