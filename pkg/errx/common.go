package errx

// Internal creates an internal server error
func Internal(message string) *Error {
	return New(message, TypeInternal)
}

// Validation creates a validation error
func Validation(message string) *Error {
	return New(message, TypeValidation)
}

// NotFound creates a not found error
func NotFound(message string) *Error {
	return New(message, TypeNotFound)
}

// Unauthenticated creates an authentication error
func Unauthenticated(message string) *Error {
	return New(message, TypeUnauthenticated)
}

// Forbidden creates a permission error
func Forbidden(message string) *Error {
	return New(message, TypeForbidden)
}

// AlreadyExists creates a uniqueness error
func AlreadyExists(message string) *Error {
	return New(message, TypeAlreadyExists)
}

// Logic creates a domain rule error
func Logic(message string) *Error {
	return New(message, TypeLogic)
}

// TooManyRequests creates a throttling error
func TooManyRequests(message string) *Error {
	return New(message, TypeTooManyRequests)
}

// Federation creates an identity provider error
func Federation(message string) *Error {
	return New(message, TypeFederation)
}

// Unavailable creates a retryable dependency error
func Unavailable(message string) *Error {
	return New(message, TypeUnavailable)
}
