package model

// Credential kinds.
const (
	CredentialStatic = "static"
	CredentialHashed = "hashed"
)

// Credential identifies an accepted caller.
// It never carries the secret token itself.
type Credential struct {
	ID   string
	Kind string
}

// Caller describes the network identity of a request.
type Caller struct {
	RemoteAddr string
}
