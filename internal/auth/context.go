package auth

import (
	"context"

	"github.com/patientcheck/patientcheck/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const credentialContextKey contextKey = "credential"

// ContextWithCredential adds the authenticated credential to the context.
func ContextWithCredential(ctx context.Context, cred *model.Credential) context.Context {
	return context.WithValue(ctx, credentialContextKey, cred)
}

// CredentialFromContext retrieves the authenticated credential.
// Returns nil if the request was not authenticated.
func CredentialFromContext(ctx context.Context) *model.Credential {
	cred, ok := ctx.Value(credentialContextKey).(*model.Credential)
	if !ok {
		return nil
	}
	return cred
}

// CredentialIDFromContext returns the credential ID, or "" if unauthenticated.
func CredentialIDFromContext(ctx context.Context) string {
	if cred := CredentialFromContext(ctx); cred != nil {
		return cred.ID
	}
	return ""
}
