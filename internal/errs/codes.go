package errs

// Code returns the stable machine-readable code used both in JSON error
// bodies and in the query-string codes appended to OAuth redirect URLs.
func Code(err error) string {
	switch err.(type) {
	case *NotFoundError:
		return "not_found"
	case *AlreadyExistsError:
		return "already_exists"
	case *ValidationError:
		return "invalid_input"
	case *InvalidStateError:
		return "invalid_state"
	case *NoRefreshTokenError:
		return "no_refresh_token"
	case *AuthExpiredError:
		return "auth_expired"
	case *AuthRevokedError:
		return "auth_revoked"
	case *MappingError:
		return "mapping_error"
	case *RateLimitedError:
		return "rate_limited"
	case *RemoteRejectedError:
		return "remote_rejected"
	case *NetworkError:
		return "network_error"
	case *SubscriptionError:
		return "subscription_required"
	case *EncryptionError, *DatabaseError:
		return "internal_error"
	case *ExternalServiceError:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}
