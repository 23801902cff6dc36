package storm

import "errors"

// Structural errors. These are returned to the caller.
var (
	// ErrAllocation is returned when a range is requested with zero
	// elements or an empty layout.
	ErrAllocation = errors.New("storm: invalid allocation")

	// ErrRegistryClosed is returned by operations on a closed registry.
	ErrRegistryClosed = errors.New("storm: registry closed")

	// ErrInterleavedLayout is returned when a spec set cannot be packed into
	// an interleaved uniform or shader storage element.
	ErrInterleavedLayout = errors.New("storm: spec set has no interleaved layout")

	// ErrUnknownStrategy is returned for an aggregation strategy name that
	// is not registered.
	ErrUnknownStrategy = errors.New("storm: unknown aggregation strategy")
)

// Recoverable errors. Commit posts these to the diag channel and keeps going.
var (
	// ErrTypeMismatch reports a source whose tuple type differs from its
	// target channel, or operands of different types.
	ErrTypeMismatch = errors.New("storm: type mismatch")

	// ErrEmptySource reports a source with no values for a range that
	// expects data.
	ErrEmptySource = errors.New("storm: empty source")

	// ErrOversize reports data exceeding a range or platform limit.
	// The part that fits is still copied.
	ErrOversize = errors.New("storm: oversize")

	// ErrIndexOutOfRange reports indexed data addressing entries past the
	// end of its values.
	ErrIndexOutOfRange = errors.New("storm: index out of range")

	// ErrUnknownChannel reports a source naming a channel its range does
	// not have.
	ErrUnknownChannel = errors.New("storm: unknown channel")

	// ErrExpiredRange reports use of a range handle that was released or
	// replaced by a migration.
	ErrExpiredRange = errors.New("storm: expired range")

	// ErrUnresolvedSource reports a source still unresolved after the
	// resolve loop gave up.
	ErrUnresolvedSource = errors.New("storm: unresolved source")
)
