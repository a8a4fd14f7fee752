// Package auth defines the credential collaborator the control plane calls
// into for /login and /register, plus an in-memory reference implementation.
//
// Real deployments back CredentialStore with whatever account system they
// already run; the relay only needs the two operations. MemoryStore hashes
// passwords with bcrypt and is safe for concurrent use.
package auth
