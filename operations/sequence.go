package operations

import (
	"github.com/Masterminds/semver/v3"
)

// SequenceHandler is the function signature of a sequence handler.
// A sequence handler runs other operations or sequences through the Bundle it receives.
type SequenceHandler[IN, OUT any] func(b Bundle, input IN) (output OUT, err error)

// Sequence is a management task composed of operations and other sequences, e.g. reading the
// current configuration of a subsystem and then writing the attributes that changed.
// Use NewSequence to create a new sequence.
type Sequence[IN, OUT any] struct {
	def     Definition
	handler SequenceHandler[IN, OUT]
}

// NewSequence creates a new sequence.
func NewSequence[IN, OUT any](
	id string, version *semver.Version, description string, handler SequenceHandler[IN, OUT],
) *Sequence[IN, OUT] {
	return &Sequence[IN, OUT]{
		def: Definition{
			ID:          id,
			Version:     version,
			Description: description,
		},
		handler: handler,
	}
}

// ID returns the sequence ID.
func (s *Sequence[IN, OUT]) ID() string {
	return s.def.ID
}

// Version returns the sequence semver version in string.
func (s *Sequence[IN, OUT]) Version() string {
	return s.def.Version.String()
}

// Description returns the sequence description.
func (s *Sequence[IN, OUT]) Description() string {
	return s.def.Description
}

// Def returns the sequence definition.
func (s *Sequence[IN, OUT]) Def() Definition {
	return s.def
}
