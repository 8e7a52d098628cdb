// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import "fmt"

// Error is a configuration error. It is fatal at startup.
type Error struct {
	Line    int // 0 when raised by validation
	Key     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Line > 0 && e.Key != "":
		return fmt.Sprintf("config line %d: %s: %s", e.Line, e.Key, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("config line %d: %s", e.Line, e.Message)
	case e.Key != "":
		return fmt.Sprintf("config: %s %s", e.Key, e.Message)
	}
	return "config: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func fieldError(key, message string) *Error {
	return &Error{Key: key, Message: message}
}
