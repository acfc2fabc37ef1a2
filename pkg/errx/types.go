package errx

// Type is the category of an error. Every category maps to one transport status.
type Type string

const (
	// TypeInternal is an unexpected failure inside the service
	TypeInternal Type = "INTERNAL"

	// TypeValidation is malformed input from the caller
	TypeValidation Type = "VALIDATION"

	// TypeUnauthenticated means the caller could not prove who they are
	TypeUnauthenticated Type = "UNAUTHENTICATED"

	// TypeForbidden means the caller is known but not allowed
	TypeForbidden Type = "FORBIDDEN"

	// TypeNotFound represents resource not found errors
	TypeNotFound Type = "NOT_FOUND"

	// TypeAlreadyExists is a uniqueness collision
	TypeAlreadyExists Type = "ALREADY_EXISTS"

	// TypeLogic is a domain rule violation (already enrolled, wrong code, ...)
	TypeLogic Type = "LOGIC"

	// TypeTooManyRequests is a throttled caller
	TypeTooManyRequests Type = "TOO_MANY_REQUESTS"

	// TypeFederation is a failure reported by a third-party identity provider
	TypeFederation Type = "FEDERATION"

	// TypeUnavailable is a transient dependency failure. Callers may retry.
	TypeUnavailable Type = "UNAVAILABLE"
)

// String returns the string representation of the error type
func (t Type) String() string {
	return string(t)
}

// Retryable reports whether an error of this type may succeed on retry.
func (t Type) Retryable() bool {
	return t == TypeUnavailable || t == TypeTooManyRequests
}

// HTTPStatus maps the error type to a transport status code.
func (t Type) HTTPStatus() int {
	switch t {
	case TypeValidation:
		return 400
	case TypeUnauthenticated:
		return 401
	case TypeForbidden:
		return 403
	case TypeNotFound:
		return 404
	case TypeAlreadyExists:
		return 409
	case TypeLogic:
		return 422
	case TypeTooManyRequests:
		return 429
	case TypeFederation:
		return 502
	case TypeUnavailable:
		return 503
	default:
		return 500
	}
}
