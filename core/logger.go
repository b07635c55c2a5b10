package core

// Logger is the application-wide logging contract.
// Implementations may fan entries out to an error-tracking backend;
// see services/logger.
//
// Error/Fatal accept optional args: an error, extra context values, or a
// user.User to attribute the entry to.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
