package auth

import "errors"

var (
	// ErrUserExists is returned when registering an email that already has an account.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when a user record is not found in the store.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned for any failed login so responses never
	// reveal whether the email exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned internally when an account is locked out.
	// Handlers map it to the same generic 401 as ErrInvalidCredentials.
	ErrAccountLocked = errors.New("account is locked")
	// ErrInvalidToken is returned when a bearer token is missing, malformed,
	// expired, or carries a bad signature. Callers must not distinguish these.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrSecretExpired is returned when a reset or verification secret has expired.
	ErrSecretExpired = errors.New("secret has expired")
	// ErrSecretMismatch is returned when a reset or verification secret does not
	// match the stored one, or has already been consumed.
	ErrSecretMismatch = errors.New("secret mismatch")
	// ErrPasswordMismatch is returned when the current password check fails on a
	// password change.
	ErrPasswordMismatch = errors.New("current password is incorrect")
	// ErrCSRFRejected is returned when the double-submit CSRF check fails.
	ErrCSRFRejected = errors.New("invalid CSRF token")
	// ErrForbidden is returned when the caller's role is insufficient.
	ErrForbidden = errors.New("forbidden")
	// ErrMissingFields is returned when required input is absent.
	ErrMissingFields = errors.New("missing required fields")
)
