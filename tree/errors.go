package tree

import (
	"errors"
	"fmt"

	"github.com/ammiranda/knowledge_tree/repository"
)

// Errors surfaced by the engine. Callers match them with errors.Is; the
// wrapped message carries the offending ids.
var (
	ErrNotFound           = errors.New("node not found")
	ErrParentNotFound     = errors.New("parent node not found")
	ErrCycleDetected      = errors.New("cycle detected")
	ErrMaxDepthExceeded   = errors.New("max depth exceeded, possible cycle")
	ErrValidation         = errors.New("validation error")
	ErrTransactionFailure = errors.New("transaction failure")
	ErrUnauthorized       = errors.New("unauthorized")
)

var domainErrors = []error{
	ErrNotFound,
	ErrParentNotFound,
	ErrCycleDetected,
	ErrMaxDepthExceeded,
	ErrValidation,
	ErrTransactionFailure,
	ErrUnauthorized,
}

// IsDomainError reports whether err carries one of the engine's error kinds
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrorKind returns a short stable label for err, used in metrics and logs
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrParentNotFound):
		return "parent_not_found"
	case errors.Is(err, ErrCycleDetected):
		return "cycle_detected"
	case errors.Is(err, ErrMaxDepthExceeded):
		return "max_depth_exceeded"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "transaction_failure"
	}
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// asTransactionFailure tags any storage error that is not already a domain
// error so callers see one of the documented kinds
func asTransactionFailure(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
}

// notFound maps the repository's missing-node error onto kind
func notFound(err error, kind error, id string) error {
	if errors.Is(err, repository.ErrNodeNotFound) {
		return fmt.Errorf("%w: %s", kind, id)
	}
	return err
}
