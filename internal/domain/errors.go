package domain

import "errors"

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrNoActiveAccount      = errors.New("no active account")
	ErrInstallationNotFound = errors.New("installation not found")
	ErrSessionNotFound      = errors.New("login session not found")

	// ErrEntitlementMissing means the account authenticated fine but does
	// not own the game. Neither transient nor a client bug; the only fix is
	// a different account.
	ErrEntitlementMissing = errors.New("account has no game entitlement")

	// ErrCredentialUnrecoverable marks a stored credential that cannot be
	// decrypted or refreshed. Callers must re-authenticate, never retry.
	ErrCredentialUnrecoverable = errors.New("stored credential is unrecoverable")

	ErrProcessNotTracked = errors.New("process is not tracked by this supervisor")
)
