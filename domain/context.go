package domain

import "context"

type apiKeyContextKey struct{}

// ContextWithAPIKey stores the API key that authenticated the request.
func ContextWithAPIKey(ctx context.Context, key *APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey{}, key)
}

// APIKeyFromContext retrieves the authenticating API key, if any.
func APIKeyFromContext(ctx context.Context) (*APIKey, bool) {
	key, ok := ctx.Value(apiKeyContextKey{}).(*APIKey)
	return key, ok
}
