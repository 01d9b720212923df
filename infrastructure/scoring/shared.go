// Package scoring provides the pure consensus mathematics of the
// engine: the mean − standard-error-of-mean score with an uncertainty
// floor, and the incremental diff computation for evaluation lifecycle
// transitions. Nothing in this package performs I/O.
package scoring

import (
	"github.com/go-playground/validator/v10"
)

// DefaultUncertaintyFloor is the assumed minimum population standard
// deviation on a [-1, 1] evaluation scale. No real sample of practical
// size has zero population variance; the floor keeps a small unanimous
// sample from outscoring a large sample with natural variance.
const DefaultUncertaintyFloor = 0.5

// Package-level validator instance for configuration validation.
// Uses go-playground/validator v10 for struct tag-based validation.
var validate = validator.New()
