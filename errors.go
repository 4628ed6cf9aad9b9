// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edfwrite

import (
	"errors"
	"fmt"
)

// ErrNotOpen is returned when a write or annotation call is made before a
// successful Open, or after Finish.
var ErrNotOpen = errors.New("edfwrite: file not open")

// errDurationRange is the local pre-validation failure wrapped by the
// recording_duration ConfigError.
var errDurationRange = errors.New("data record duration must be in the range 0.001 to 60 seconds")

// OpenError reports that the engine could not allocate a write handle, for
// example because of a bad path or an unsupported channel count.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("edfwrite: open %q for writing: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ConfigError reports a header or channel field rejected by the engine, or
// by local validation. Channel is -1 for recording-level fields.
type ConfigError struct {
	Field   string
	Channel int
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Channel >= 0 {
		return fmt.Sprintf("edfwrite: set %s on channel %d: %v", e.Field, e.Channel, e.Err)
	}
	return fmt.Sprintf("edfwrite: set %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ShapeError reports a sample buffer whose length is not a whole number of
// data record periods, or a frame whose channel count disagrees with the
// header. Channel is -1 for the latter.
type ShapeError struct {
	Channel int
	Got     int
	Want    int
}

func (e *ShapeError) Error() string {
	if e.Channel < 0 {
		return fmt.Sprintf("edfwrite: frame has %d channels, header declares %d", e.Got, e.Want)
	}
	return fmt.Sprintf("edfwrite: channel %d: %d samples is not a whole number of %d-sample periods", e.Channel, e.Got, e.Want)
}

// WriteError reports that the engine rejected a record write after shape
// validation passed.
type WriteError struct {
	Channel int
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("edfwrite: write record for channel %d: %v", e.Channel, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// AnnotationError reports that the engine rejected an annotation write.
type AnnotationError struct {
	Err error
}

func (e *AnnotationError) Error() string {
	return fmt.Sprintf("edfwrite: write annotation: %v", e.Err)
}

func (e *AnnotationError) Unwrap() error { return e.Err }

// CloseError reports that the engine rejected the close operation. The
// handle is considered released regardless.
type CloseError struct {
	Err error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("edfwrite: close: %v", e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// UnsupportedError reports an operation the codec engine ABI exposes but
// this writer does not implement.
type UnsupportedError struct {
	Op string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("edfwrite: %s is not implemented", e.Op)
}
