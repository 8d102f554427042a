package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrDocumentNotFound = errors.New("document not found")
	ErrTemporary        = errors.New("temporary failure")

	// ErrNoActiveIndex means no index version has ever been activated.
	ErrNoActiveIndex = errors.New("no active index version")

	// ErrIndexDrift means the staged index failed the consistency check
	// against the document store and the swap was refused.
	ErrIndexDrift = errors.New("index drift detected")
)

// NoGroundedAnswer is the only failure text end users ever see; internal
// causes are logged, not surfaced.
const NoGroundedAnswer = "no grounded answer available"

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
