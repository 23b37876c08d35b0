package tmin

import "github.com/ehrlich-b/go-tmin/internal/constants"

// Re-exported defaults, mirroring the teacher's root-level constants.go
// re-export of internal/constants values callers need without reaching
// into an internal package.
const (
	MaxInputSize          = constants.MaxInputSize
	DefaultMapSize         = constants.DefaultMapSize
	DefaultDelLenFloor     = constants.DefaultDelLenFloor
	DefaultStartupTimeout  = constants.DefaultStartupTimeout
	DefaultExecTimeout     = constants.DefaultExecTimeout
	MinExecTimeout         = constants.MinExecTimeout

	minExecsForSkewWarning = constants.MinExecsForSkewWarning
)
