package ufat

// Logger is the leveled logging seam a host can wire in. Its shape mirrors
// the pack's github.com/dsoprea/go-logging LogContext (Debugf/Infof/
// Warningf/Errorf taking a printf-style format and args), so a
// go-logging-backed LogContext satisfies it directly without an adapter.
// A Volume's behavior never depends on whether a Logger is set; logging is
// strictly supplementary to the errors it returns.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// noopLogger discards everything. It is the default when Options.Logger is
// left nil.
type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{})   {}
func (noopLogger) Infof(format string, args ...interface{})    {}
func (noopLogger) Warningf(format string, args ...interface{}) {}
func (noopLogger) Errorf(format string, args ...interface{})   {}
