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
	"time"

	"go.uber.org/zap"
)

// Option configures a Writer at construction time.
type Option func(*options)

type options struct {
	engine              Engine
	logger              *zap.Logger
	recordDuration      time.Duration
	recordingAdditional string
	annotationSignals   int
	annotationPosition  *AnnotationPosition
}

func defaultOptions() *options {
	return &options{
		engine: defaultEngine{},
		logger: zap.NewNop(),
	}
}

// WithEngine replaces the built-in codec engine. Mostly useful for tests
// and for callers that bring their own container implementation.
func WithEngine(engine Engine) Option {
	return func(o *options) {
		o.engine = engine
	}
}

// WithLogger sets the logger used for warning-level frame repair events.
// The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRecordDuration overrides the data record duration. The engine
// default is one second. Valid durations are 1ms through 60s inclusive;
// anything outside that range fails Open with a ConfigError before the
// engine is touched.
func WithRecordDuration(d time.Duration) Option {
	return func(o *options) {
		o.recordDuration = d
	}
}

// WithRecordingAdditional sets the free-text additional recording
// information field of the header.
func WithRecordingAdditional(info string) Option {
	return func(o *options) {
		o.recordingAdditional = info
	}
}

// WithAnnotationSignals sets the number of annotation pseudo-channels in
// each data record. The engine default is one.
func WithAnnotationSignals(n int) Option {
	return func(o *options) {
		o.annotationSignals = n
	}
}

// WithAnnotationPosition sets where the annotation channel sits in each
// data record. The engine default is AnnotationsEnd.
func WithAnnotationPosition(pos AnnotationPosition) Option {
	return func(o *options) {
		p := pos
		o.annotationPosition = &p
	}
}
