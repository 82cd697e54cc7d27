package descriptor

import "errors"

// ErrDecode is returned (wrapped) for any payload that does not conform to
// the descriptor it was decoded as.
var ErrDecode = errors.New("descriptor: decode failed")

// ErrInvalidDescriptor is returned by Encode when a descriptor is missing a
// required field and would not decode back.
var ErrInvalidDescriptor = errors.New("descriptor: invalid descriptor")
