package errs

import "fmt"

type ErrorMessage struct {
	Message string
}

func (e *ErrorMessage) Error() string { return e.Message }

type NotFoundError struct {
	ErrorMessage
}

type AlreadyExistsError struct {
	ErrorMessage
}

type ValidationError struct {
	ErrorMessage
}

// InvalidStateError means the OAuth state token was missing, already
// consumed, or expired. The auth flow must be restarted from scratch.
type InvalidStateError struct {
	ErrorMessage
}

// NoRefreshTokenError is terminal: the stored credentials cannot be
// refreshed and the user has to reconnect the account.
type NoRefreshTokenError struct {
	ErrorMessage
}

// AuthExpiredError means the access token is past expiry and a refresh
// was not possible right now.
type AuthExpiredError struct {
	ErrorMessage
}

// AuthRevokedError means the provider rejected the grant itself
// (e.g. invalid_grant on refresh). The connection is unrecoverable.
type AuthRevokedError struct {
	ErrorMessage
}

// MappingError means a transaction's category or merchant has no
// resolvable remote entity.
type MappingError struct {
	ErrorMessage
}

// RateLimitedError means the provider throttled the call. Retryable.
type RateLimitedError struct {
	ErrorMessage
}

// RemoteRejectedError is a provider-side business rule failure. Not retried.
type RemoteRejectedError struct {
	ErrorMessage
}

// NetworkError covers transport failures and timeouts against a provider.
type NetworkError struct {
	ErrorMessage
}

// SubscriptionError means the user's plan does not allow the operation.
type SubscriptionError struct {
	ErrorMessage
}

type DatabaseError struct {
	ErrorMessage
	Operation string
}

type ExternalServiceError struct {
	ErrorMessage
	Service   string
	Transient bool
}

type EncryptionError struct {
	ErrorMessage
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewAlreadyExistsError(message string) *AlreadyExistsError {
	return &AlreadyExistsError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewInvalidStateError(message string) *InvalidStateError {
	return &InvalidStateError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewNoRefreshTokenError(provider string) *NoRefreshTokenError {
	return &NoRefreshTokenError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("no refresh token stored for %s, reconnect required", provider)},
	}
}

func NewAuthExpiredError(message string) *AuthExpiredError {
	return &AuthExpiredError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewAuthRevokedError(message string) *AuthRevokedError {
	return &AuthRevokedError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewMappingError(message string) *MappingError {
	return &MappingError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewRateLimitedError(message string) *RateLimitedError {
	return &RateLimitedError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewRemoteRejectedError(message string) *RemoteRejectedError {
	return &RemoteRejectedError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewNetworkError(message string) *NetworkError {
	return &NetworkError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewSubscriptionError(message string) *SubscriptionError {
	return &SubscriptionError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewDatabaseError(operation, message string) *DatabaseError {
	return &DatabaseError{
		ErrorMessage: ErrorMessage{Message: message},
		Operation:    operation,
	}
}

func NewExternalServiceError(service, message string, transient bool) *ExternalServiceError {
	return &ExternalServiceError{
		ErrorMessage: ErrorMessage{Message: message},
		Service:      service,
		Transient:    transient,
	}
}

func NewEncryptionError(message string) *EncryptionError {
	return &EncryptionError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}
