// Package errors turns failures that reach the command line into coded,
// actionable messages.
//
// # Error Codes
//
// Each code names one failure the user can do something about:
//   - E101: the room could not be resolved
//   - E102: the chat server could not be reached
//   - E103: the server rejected the auth packet
//   - E201: the configuration is invalid
//   - E301: events could not be archived
//
// # Usage
//
//	if err := run(); err != nil {
//	    errors.PrintError(errors.Classify(err))
//	}
//
// Classify picks the code from the error chain, so callers rarely need to
// build an Error by hand. When they do:
//
//	err := errors.New("E201").
//	    WithDetail("room ids must be positive").
//	    Wrap(cause)
package errors
