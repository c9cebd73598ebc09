package relay

import "fmt"

// Steps of the ModifyRepository sequence, in execution order.
const (
	StepGetRef       = "get-ref"
	StepCreateRef    = "create-ref"
	StepCreateTree   = "create-tree"
	StepCreateCommit = "create-commit"
	StepUpdateRef    = "update-ref"
)

// ValidationError is returned when a request is rejected locally, before any
// upstream call is made.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ExternalServiceError carries an upstream response whose status was not the
// one the operation expected. Status and Body are relayed to the caller verbatim.
type ExternalServiceError struct {
	Service     string
	Status      int
	ContentType string
	Body        []byte
}

// Error implements the error interface.
func (e ExternalServiceError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Service, e.Status)
}

// PartialFailureError is returned when ModifyRepository fails after the new
// branch was created. The branch, and possibly a tree or commit object, are
// left on the host; Branch names it so the caller can delete it.
type PartialFailureError struct {
	Step   string
	Branch string
	Err    error
}

// Error implements the error interface.
func (e PartialFailureError) Error() string {
	return fmt.Sprintf("%s failed after creating branch %q: %v", e.Step, e.Branch, e.Err)
}

// Unwrap exposes the underlying upstream error.
func (e PartialFailureError) Unwrap() error {
	return e.Err
}
