package port

import "context"

// CredentialVerifier checks a secret against the credential store owned by
// user management. The orchestrator treats any error from this collaborator
// as an ordinary credential failure so that backend faults never leak
// through error variation.
type CredentialVerifier interface {
	Verify(ctx context.Context, identity, secret string) (bool, error)
}
