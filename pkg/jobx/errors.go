package jobx

import "github.com/Abraxas-365/gatekeeper/pkg/errx"

var ErrRegistry = errx.NewRegistry("JOBX")

var (
	CodeJobNotFound    = ErrRegistry.Register("JOB_NOT_FOUND", errx.TypeNotFound, "Job not found")
	CodeInvalidJob     = ErrRegistry.Register("INVALID_JOB", errx.TypeValidation, "Invalid job definition")
	CodeBackend        = ErrRegistry.Register("BACKEND", errx.TypeUnavailable, "Job queue backend unavailable")
	CodeAlreadyRunning = ErrRegistry.Register("ALREADY_RUNNING", errx.TypeLogic, "Worker is already running")
)

func ErrJobNotFound(jobID string) *errx.Error {
	return ErrRegistry.New(CodeJobNotFound).WithDetail("job_id", jobID)
}

func ErrInvalidJob(reason string) *errx.Error {
	return ErrRegistry.New(CodeInvalidJob).WithDetail("reason", reason)
}

// ErrBackend wraps a failure of the queue storage during op.
func ErrBackend(op string, cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeBackend, cause).WithDetail("op", op)
}
