// Package errors provides coded, operator-facing errors for readyroom.
//
// Library packages return plain sentinel errors. The configuration loader and
// the CLI wrap them in a *RoomError that carries a stable code, a plain
// explanation and a hint, so a failed start tells the operator what to change.
//
// # Error Codes
//
//	E1xx  configuration file
//	E2xx  listeners and transport
//	E3xx  CLI and probe
//	E4xx  transcript archive
//
// # Usage
//
//	err := errors.New("E102").
//	    WithDetail("capacity must be between 1 and 255").
//	    WithSuggestion(`Set "capacity" in readyroom.json`)
//
//	errors.PrintError(err)
package errors
