package token

import "github.com/Abraxas-365/gatekeeper/pkg/errx"

var ErrRegistry = errx.NewRegistry("TOKEN")

var CodeIssueFailed = ErrRegistry.Register("ISSUE_FAILED", errx.TypeInternal, "Failed to issue token")

func ErrIssueFailed() *errx.Error {
	return ErrRegistry.New(CodeIssueFailed)
}
