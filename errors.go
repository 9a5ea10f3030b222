package hashsmith

import "errors"

// ErrInvalidLoadFactor is the panic value of New/NewConcurrentMap when
// a load factor outside (0, 1) is supplied via WithLoadFactor.
var ErrInvalidLoadFactor = errors.New("hashsmith: load factor must be strictly between 0 and 1")

// ErrNilValue is the panic value of the concurrent engine's
// operations that reject a nil value (see isNilValue); the lock-free
// engine does not store nil values (spec section 3: "values are
// non-null in the lock-free engine").
var ErrNilValue = errors.New("hashsmith: concurrent map values must be non-nil")
