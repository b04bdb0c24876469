package bytepool

import "fmt"

// Sentinel errors for the taxonomy of allocator-level failures. Use errors.Is
// to test for a specific kind; every allocator error wraps one of these via
// fmt.Errorf("%w"). LoadTOML's file-reading and decoding errors wrap the TOML
// decoder's error instead.
var (
	// ErrConfigInvalid is returned by Config.Validate, NewFacade and LoadTOML
	// when a combination of options cannot produce a working allocator, and
	// by Facade.Allocate when no arena of the requested kind is configured.
	ErrConfigInvalid = fmt.Errorf("bytepool: invalid configuration")

	// ErrOutOfMemory is returned when the host allocator refuses to back a
	// new chunk or a huge (unpooled) region.
	ErrOutOfMemory = fmt.Errorf("bytepool: out of memory")

	// ErrCapacityExceeded is returned when a requested minimum capacity
	// exceeds the caller-supplied maximum.
	ErrCapacityExceeded = fmt.Errorf("bytepool: capacity exceeded")

	// ErrSizeOutOfRange is returned for negative sizes or sizes the
	// allocator cannot represent.
	ErrSizeOutOfRange = fmt.Errorf("bytepool: size out of range")
)

// InvariantError describes an internal consistency violation: a bug, not a
// recoverable condition. Operations that detect one panic with a value of
// this type rather than returning an error, per the fatal/non-recoverable
// contract in the error taxonomy.
type InvariantError struct {
	Op     string // operation that detected the violation
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("bytepool: invariant violated in %s: %s", e.Op, e.Detail)
}

// invariantViolation logs the violation through log (a no-op logger if the
// caller never wired one in) and then panics. Every caller is expected to
// never recover from this panic.
func invariantViolation(log logger, op, detail string) {
	log.invariantViolated(op, detail)
	panic(&InvariantError{Op: op, Detail: detail})
}
