package notifx

import "github.com/Abraxas-365/gatekeeper/pkg/errx"

var notifxErrors = errx.NewRegistry("NOTIFX")

var (
	CodeSendFailed       = notifxErrors.Register("SEND_FAILED", errx.TypeUnavailable, "Failed to send email")
	CodeInvalidMessage   = notifxErrors.Register("INVALID_MESSAGE", errx.TypeValidation, "Invalid email message")
	CodeTemplateNotFound = notifxErrors.Register("TEMPLATE_NOT_FOUND", errx.TypeNotFound, "Email template not found")
	CodeTemplateParse    = notifxErrors.Register("TEMPLATE_PARSE", errx.TypeValidation, "Failed to parse email template")
	CodeTemplateRender   = notifxErrors.Register("TEMPLATE_RENDER", errx.TypeInternal, "Failed to render email template")
)

// ErrSendFailed wraps a provider failure. It is retryable.
func ErrSendFailed(provider string, cause error) *errx.Error {
	return notifxErrors.NewWithCause(CodeSendFailed, cause).WithDetail("provider", provider)
}
