package connect

import "errors"

var (
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("connect: invalid request")
	// ErrDiscovery indicates the tool server's OAuth metadata could not be
	// fetched or parsed. Discovery failures are terminal, never retried.
	ErrDiscovery = errors.New("connect: metadata discovery failed")
	// ErrRegistration indicates the authorization server rejected dynamic
	// client registration.
	ErrRegistration = errors.New("connect: client registration failed")
	// ErrInvalidState indicates an unknown, expired, or already-consumed
	// state token. Treated as a potential CSRF/replay attempt.
	ErrInvalidState = errors.New("connect: invalid or expired state")
	// ErrTokenExchange indicates the authorization server rejected the code.
	ErrTokenExchange = errors.New("connect: token exchange failed")
	// ErrEncryptionConfig indicates a missing or malformed symmetric key.
	ErrEncryptionConfig = errors.New("connect: invalid encryption key")
	// ErrPersistence indicates the credential upsert failed.
	ErrPersistence = errors.New("connect: credential persistence failed")
)
