package confwatch

// StdLogger is an interface satisified by several logging types, including
// the stdlib `log.Logger`, and `github.com/rs/zerolog.Logger`, and should be
// trivial enough to wrap in other cases.
type StdLogger interface {
	Printf(string, ...any)
	Print(...any)
}

// logWrapper wraps a StdLogger implementation, and gracefully degrades to a
// noop if it's `nil`.
type logWrapper struct {
	log StdLogger
}

func (l *logWrapper) Printf(format string, others ...any) {
	if l.log == nil {
		return
	}
	l.log.Printf(format, others...)
}

func (l *logWrapper) Print(args ...any) {
	if l.log == nil {
		return
	}
	l.log.Print(args...)
}
