package radar

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid configuration; construction fails rather
// than proceeding with partial settings.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "radar config: " + e.Reason }

// Startup step sentinels, matchable via errors.Is on a DriverError.
var (
	ErrSetup     = errors.New("interface setup")
	ErrOpenBus   = errors.New("open bus")
	ErrLoadCodec = errors.New("load codec")
)

// DriverError wraps a startup failure with the step it occurred in. All
// resources acquired before the failing step have been released by the time
// it is returned.
type DriverError struct {
	Step error
	Err  error
}

func (e *DriverError) Error() string { return fmt.Sprintf("radar start: %v: %v", e.Step, e.Err) }

func (e *DriverError) Unwrap() error { return e.Err }

func (e *DriverError) Is(target error) bool { return target == e.Step }
