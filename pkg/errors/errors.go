// Unified error handling for the print menu controller
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Card storage errors
	ErrStorageRead     ErrorCode = "STORAGE_READ"
	ErrStorageNotReady ErrorCode = "STORAGE_NOT_READY"
	ErrStorageNotFound ErrorCode = "STORAGE_NOT_FOUND"
	ErrHeaderParse     ErrorCode = "HEADER_PARSE"

	// Machine errors
	ErrQueueFull     ErrorCode = "QUEUE_FULL"
	ErrPositionFault ErrorCode = "POSITION_FAULT"
	ErrSerialLink    ErrorCode = "SERIAL_LINK"

	// Session errors
	ErrSessionState ErrorCode = "SESSION_STATE"
	ErrRuntime      ErrorCode = "RUNTIME"
)

// HostError is the unified error type for the controller
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Section is the config section or context (card path, port)
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Line is the line number in a config or G-code file
	Line int

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *HostError) Error() string {
	msg := fmt.Sprintf("[%s", e.Code)
	if e.Section != "" {
		msg += ":" + e.Section
	}
	if e.Option != "" {
		msg += ":" + e.Option
	}
	msg += "] " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetSection sets the context section
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// SetLine sets the line number
func (e *HostError) SetLine(line int) *HostError {
	e.Line = line
	return e
}

// SetContext adds additional context
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
	}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *HostError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigOptionError creates an error for missing or invalid config option
func ConfigOptionError(section, option string) *HostError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section)).
		SetSection(section).
		SetOption(option)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *HostError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// ConfigTypeError creates an error for config type conversion failure
func ConfigTypeError(section, option, value string, targetType string, err error) *HostError {
	return Wrap(err, ErrConfigType, fmt.Sprintf("failed to parse '%s' as %s", value, targetType)).
		SetSection(section).
		SetOption(option)
}

// Storage errors

// StorageReadError wraps a failed read from the card.
func StorageReadError(path string, err error) *HostError {
	return Wrap(err, ErrStorageRead, "read failed").SetSection(path)
}

// StorageNotReadyError reports a card that is absent or not initialised.
func StorageNotReadyError(root string) *HostError {
	return New(ErrStorageNotReady, "card not ready").SetSection(root)
}

// StorageNotFoundError reports a listing index or name with no entry.
func StorageNotFoundError(name string) *HostError {
	return New(ErrStorageNotFound, fmt.Sprintf("no entry '%s'", name)).SetSection(name)
}

// HeaderParseError reports a header line that could not be scanned.
func HeaderParseError(line int, err error) *HostError {
	return Wrap(err, ErrHeaderParse, "header scan aborted").SetLine(line)
}

// Machine errors

// QueueFullError reports a command that did not fit the planner queue.
func QueueFullError(pending, capacity int) *HostError {
	return New(ErrQueueFull, fmt.Sprintf("command queue full (%d/%d)", pending, capacity)).
		SetContext("pending", pending).
		SetContext("capacity", capacity)
}

// PositionFaultError reports a move outside the printable volume.
func PositionFaultError(axis string, coord, min, max float64) *HostError {
	return New(ErrPositionFault, fmt.Sprintf("%s coordinate %.3f out of bounds [%.3f, %.3f]", axis, coord, min, max)).
		SetSection(axis)
}

// SerialLinkError wraps a failure talking to the motion firmware.
func SerialLinkError(port string, err error) *HostError {
	return Wrap(err, ErrSerialLink, "serial link failed").SetSection(port)
}

// SessionStateError reports a user action that is invalid in the current phase.
func SessionStateError(action, phase string) *HostError {
	return New(ErrSessionState, fmt.Sprintf("%s not allowed while %s", action, phase)).
		SetSection(phase)
}

// RuntimeError creates a general runtime error
func RuntimeError(message string) *HostError {
	return New(ErrRuntime, message)
}

// WithConfigPath adds config file path to error context
func WithConfigPath(err *HostError, path string) *HostError {
	if err == nil {
		return nil
	}
	return err.SetContext("config_path", path)
}

// FromPanic converts a recovered panic value into a HostError.
// Call it with the result of recover() inside a deferred function.
func FromPanic(r interface{}) *HostError {
	switch x := r.(type) {
	case nil:
		return nil
	case string:
		return RuntimeError(fmt.Sprintf("panic: %s", x))
	case error:
		return Wrap(x, ErrRuntime, "panic")
	default:
		return RuntimeError(fmt.Sprintf("panic: %v", x))
	}
}

// Is checks if any error in the chain carries the given code
func Is(err error, code ErrorCode) bool {
	var hostErr *HostError
	for err != nil {
		if !stderrors.As(err, &hostErr) {
			return false
		}
		if hostErr.Code == code {
			return true
		}
		err = hostErr.Err
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}

// IsStorage checks if error came from the card
func IsStorage(err error) bool {
	return Is(err, ErrStorageRead) ||
		Is(err, ErrStorageNotReady) ||
		Is(err, ErrStorageNotFound)
}
