package auth

import "context"

// Authenticator checks credentials against the slot backend and returns its
// opaque session token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

type sessionIssuer interface {
	GenerateToken(username, backendToken string) (string, error)
}
