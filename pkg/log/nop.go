package log

type nopLogger struct{}

// Nop returns a logger that discards everything, for tests and for
// callers that have not wired logging yet.
func Nop() LoggerService {
	return nopLogger{}
}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Fatal(string, ...any) {}

func (nopLogger) Named(string) LoggerService { return nopLogger{} }
