package storage

import (
	"errors"
	"fmt"

	"github.com/safar/storefront-core/internal/models"
)

type ErrorKind int

const (
	KindNotFound ErrorKind = iota
	KindUnavailable
	KindConstraint
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindUnavailable:
		return "backend unavailable"
	case KindConstraint:
		return "constraint violation"
	case KindConflict:
		return "version conflict"
	}
	return "unknown"
}

var (
	ErrNotFound    = errors.New("record not found")
	ErrUnavailable = errors.New("backend unavailable")
	ErrConstraint  = errors.New("constraint violation")
	ErrConflict    = errors.New("version conflict")
)

// StorageError is the single error type backends return. Match it with
// errors.Is against the sentinels above.
type StorageError struct {
	Kind       ErrorKind
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Collection)
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrConstraint:
		return e.Kind == KindConstraint
	case ErrConflict:
		return e.Kind == KindConflict
	}
	return false
}

func NotFound(op, collection, id string) error {
	return &StorageError{Kind: KindNotFound, Op: op, Collection: collection, ID: id}
}

func Unavailable(op, collection string, err error) error {
	return &StorageError{Kind: KindUnavailable, Op: op, Collection: collection, Err: err}
}

func Constraint(op, collection, id string, err error) error {
	return &StorageError{Kind: KindConstraint, Op: op, Collection: collection, ID: id, Err: err}
}

func Conflict(op, collection, id string) error {
	return &StorageError{Kind: KindConflict, Op: op, Collection: collection, ID: id}
}

// Domain adds the matching domain sentinel to a storage error while keeping
// the original in the chain, so both errors.Is(err, ErrConflict) and
// errors.Is(err, models.ErrConflict) hold. Constraint violations pass
// through unchanged; the caller knows which field they concern. Applying
// Domain twice is the same as applying it once.
func Domain(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range domainKinds {
		if errors.Is(err, m.storage) {
			if errors.Is(err, m.domain) {
				return err
			}
			return fmt.Errorf("%w: %w", m.domain, err)
		}
	}
	return err
}

var domainKinds = []struct {
	storage error
	domain  error
}{
	{ErrNotFound, models.ErrNotFound},
	{ErrUnavailable, models.ErrStorageUnavailable},
	{ErrConflict, models.ErrConflict},
}
