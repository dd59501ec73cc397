package apply

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dsonbill/BDDMP/internal/events"
)

// ErrNotResolved is matched by every ResolutionError.
var ErrNotResolved = errors.New("apply: reference not resolved")

// ErrApplierPanic wraps a recovered panic raised outside an effect spawn.
var ErrApplierPanic = errors.New("apply: applier panicked")

// ResolutionKind names the reference that could not be resolved.
type ResolutionKind string

const (
	ResolutionEntity ResolutionKind = "entity"
	ResolutionPart   ResolutionKind = "part"
)

// ResolutionError reports an entity or part that is unknown locally. It is an
// expected outcome when the entity was destroyed or has not been seen yet.
type ResolutionError struct {
	Kind     ResolutionKind
	EntityID uuid.UUID
	PartID   uint32
}

func (e *ResolutionError) Error() string {
	if e.Kind == ResolutionPart {
		return fmt.Sprintf("apply: part %d of entity %s not found", e.PartID, e.EntityID)
	}
	return fmt.Sprintf("apply: entity %s not found", e.EntityID)
}

func (e *ResolutionError) Unwrap() error { return ErrNotResolved }

// EffectSpawnError reports a failed or panicking effect spawn.
type EffectSpawnError struct {
	Category events.Category
	Err      error
}

func (e *EffectSpawnError) Error() string {
	return fmt.Sprintf("apply: spawn %s effect: %v", e.Category, e.Err)
}

func (e *EffectSpawnError) Unwrap() error { return e.Err }

// Recover converts a panic inside fn into an error wrapping ErrApplierPanic.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrApplierPanic, r)
		}
	}()
	return fn()
}
