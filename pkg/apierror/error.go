// Package apierror turns provider and request failures into structured,
// JSON-serializable errors.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
)

// Kind is the category callers branch on
type Kind string

const (
	KindPermissionDenied Kind = "permission_denied"
	KindUnavailable      Kind = "unavailable"
	KindInvalidRequest   Kind = "invalid_request"
	KindInternal         Kind = "internal"
)

// Surface names the provider APIs a request depends on, for remediation hints
type Surface string

const (
	SurfaceCost      Surface = "cost"
	SurfaceInstances Surface = "instances"
)

var permissionHints = map[Surface]string{
	SurfaceCost:      "Missing Cost Explorer permissions. See README for required IAM policy.",
	SurfaceInstances: "Missing EC2/CloudWatch permissions. See README for required IAM policy.",
}

// awsPermissionCodes are the error codes AWS uses for authorization failures
var awsPermissionCodes = map[string]bool{
	"AccessDeniedException": true,
	"UnauthorizedOperation": true,
	"AccessDenied":          true,
}

// Error encodes an error as a JSON-serializable struct
type Error struct {
	// Provider error code when known (e.g. AccessDeniedException), else the kind
	Code string `json:"error"`
	Kind Kind   `json:"kind"`

	// The text of the error
	Message string `json:"message"`

	// (optional) Remediation hint
	Details string `json:"details,omitempty"`

	// An identifier for this error for tracing purposes
	ErrorID string `json:"errorId,omitempty"`

	Err error `json:"-"`
}

// Error implements the standard error interface
func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Format implements the fmt.Formatter interface
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.Err != nil {
			fmt.Fprintf(s, "%s: %+v", e.messageWithErrorID(), e.Err)
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.messageWithErrorID())
	case 'q':
		fmt.Fprintf(s, "%q", e.messageWithErrorID())
	}
}

func (e *Error) messageWithErrorID() string {
	if len(e.ErrorID) > 0 {
		return fmt.Sprintf("%s (error_id %s)", e.Message, e.ErrorID)
	}
	return e.Message
}

// Status maps the kind onto an HTTP status code
func (e *Error) Status() int {
	switch e.Kind {
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusBadGateway
	case KindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, code, message string, err error) *Error {
	if code == "" {
		code = string(kind)
	}
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		ErrorID: uuid.NewString(),
		Err:     err,
	}
}

// InvalidRequest reports a caller mistake
func InvalidRequest(format string, args ...any) *Error {
	return newError(KindInvalidRequest, "", fmt.Sprintf(format, args...), nil)
}

// Classify inspects err and wraps it in an *Error. An err that already is an
// *Error is returned as is.
func Classify(err error, surface Surface) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var smithyErr smithy.APIError
	if errors.As(err, &smithyErr) {
		code := smithyErr.ErrorCode()
		if awsPermissionCodes[code] {
			e := newError(KindPermissionDenied, code, smithyErr.ErrorMessage(), err)
			e.Details = permissionHints[surface]
			return e
		}
		if code == "ThrottlingException" || code == "RequestLimitExceeded" || code == "LimitExceededException" {
			return newError(KindUnavailable, code, smithyErr.ErrorMessage(), err)
		}
		return newError(KindInternal, code, err.Error(), err)
	}

	if k8serrors.IsForbidden(err) || k8serrors.IsUnauthorized(err) {
		e := newError(KindPermissionDenied, "Forbidden", err.Error(), err)
		e.Details = "The Kubernetes service account cannot list nodes or node metrics."
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) || k8serrors.IsTimeout(err) || k8serrors.IsServerTimeout(err) {
		return newError(KindUnavailable, "Timeout", err.Error(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return newError(KindUnavailable, "NetworkError", err.Error(), err)
	}

	return newError(KindInternal, "", err.Error(), err)
}
