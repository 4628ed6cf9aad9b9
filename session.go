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
	"sync"
	"time"
)

// Data record durations expressible by the engine, in 10-microsecond
// ticks: 0.001s through 60s inclusive.
const (
	minDurationTicks = 100
	maxDurationTicks = 6_000_000
)

type sessionState int

const (
	stateUnopened sessionState = iota
	stateOpen
	stateClosed
)

// session owns exactly one engine handle and its open/closed lifecycle.
// All engine calls are serialized on mu, so a session can be shared across
// goroutines; concurrent callers interleave at frame/annotation
// granularity in lock acquisition order.
type session struct {
	engine Engine

	mu     sync.Mutex
	state  sessionState
	handle Handle
}

func newSession(engine Engine) *session {
	return &session{engine: engine}
}

// open allocates a write-only handle sized for the header's channel count
// and pushes all header fields through the engine in the fixed setup
// order. A setter failure aborts the setup and is surfaced as a
// ConfigError for that field; the handle stays open mid-configured, so the
// caller must still call finish to release it.
func (s *session) open(path string, hdr *Header, cfg *options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateUnopened {
		return &OpenError{Path: path, Err: ErrNotOpen}
	}

	handle, err := s.engine.Open(path, FiletypeForPath(path), len(hdr.Channels))
	if err != nil {
		return &OpenError{Path: path, Err: err}
	}
	s.handle = handle
	s.state = stateOpen

	return s.setupHeader(hdr, cfg)
}

// setupHeader pushes the patient fields, then every channel's fields in
// index order, then the recording-level options. The order is part of the
// engine contract: channel fields may only be set once the handle knows
// the channel exists.
func (s *session) setupHeader(hdr *Header, cfg *options) error {
	patient := hdr.Patient
	if err := s.handle.SetEquipment(patient.Equipment); err != nil {
		return &ConfigError{Field: "equipment", Channel: -1, Err: err}
	}
	if err := s.handle.SetPatientName(patient.Name); err != nil {
		return &ConfigError{Field: "patient_name", Channel: -1, Err: err}
	}
	if err := s.handle.SetPatientCode(patient.Code); err != nil {
		return &ConfigError{Field: "patient_code", Channel: -1, Err: err}
	}
	if err := s.handle.SetSex(int(patient.Sex)); err != nil {
		return &ConfigError{Field: "sex", Channel: -1, Err: err}
	}
	if err := s.handle.SetAdminCode(patient.AdminCode); err != nil {
		return &ConfigError{Field: "admin_code", Channel: -1, Err: err}
	}
	if err := s.handle.SetTechnician(patient.Technician); err != nil {
		return &ConfigError{Field: "technician", Channel: -1, Err: err}
	}

	for i, ch := range hdr.Channels {
		if err := s.handle.SetLabel(i, ch.Label); err != nil {
			return &ConfigError{Field: "label", Channel: i, Err: err}
		}
		if err := s.handle.SetTransducer(i, ch.Transducer); err != nil {
			return &ConfigError{Field: "transducer", Channel: i, Err: err}
		}
		if err := s.handle.SetDigitalMaximum(i, ch.DigitalMax); err != nil {
			return &ConfigError{Field: "digital_maximum", Channel: i, Err: err}
		}
		if err := s.handle.SetDigitalMinimum(i, ch.DigitalMin); err != nil {
			return &ConfigError{Field: "digital_minimum", Channel: i, Err: err}
		}
		if err := s.handle.SetPhysicalMaximum(i, ch.PhysicalMax); err != nil {
			return &ConfigError{Field: "physical_maximum", Channel: i, Err: err}
		}
		if err := s.handle.SetPhysicalMinimum(i, ch.PhysicalMin); err != nil {
			return &ConfigError{Field: "physical_minimum", Channel: i, Err: err}
		}
		if err := s.handle.SetPhysicalDimension(i, ch.PhysicalDimension); err != nil {
			return &ConfigError{Field: "physical_dimension", Channel: i, Err: err}
		}
		if err := s.handle.SetSampleFrequency(i, ch.SampleFrequency); err != nil {
			return &ConfigError{Field: "sample_frequency", Channel: i, Err: err}
		}
	}

	if cfg.recordingAdditional != "" {
		if err := s.handle.SetRecordingAdditional(cfg.recordingAdditional); err != nil {
			return &ConfigError{Field: "recording_additional", Channel: -1, Err: err}
		}
	}
	if cfg.recordDuration != 0 {
		if err := s.setRecordingDuration(cfg.recordDuration); err != nil {
			return err
		}
	}
	if cfg.annotationSignals > 0 {
		if err := s.handle.SetNumberOfAnnotationSignals(cfg.annotationSignals); err != nil {
			return &ConfigError{Field: "annotation_signals", Channel: -1, Err: err}
		}
	}
	if cfg.annotationPosition != nil {
		if err := s.handle.SetAnnotationPosition(int(*cfg.annotationPosition)); err != nil {
			return &ConfigError{Field: "annotation_position", Channel: -1, Err: err}
		}
	}

	return nil
}

// setRecordingDuration validates the duration against the engine's tick
// range before calling it; out-of-range durations never reach the engine.
func (s *session) setRecordingDuration(d time.Duration) error {
	ticks := int(d / (10 * time.Microsecond))
	if ticks < minDurationTicks || ticks > maxDurationTicks {
		return &ConfigError{
			Field:   "recording_duration",
			Channel: -1,
			Err:     errDurationRange,
		}
	}
	if err := s.handle.SetDatarecordDuration(ticks); err != nil {
		return &ConfigError{Field: "recording_duration", Channel: -1, Err: err}
	}
	return nil
}

// writeFrame writes one (possibly repaired) frame channel-by-channel in
// index order, chunking each channel's buffer into period-sized engine
// writes. The whole frame is written under one lock acquisition so
// concurrent frames cannot interleave mid-record.
func (s *session) writeFrame(frame Frame, channels []Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen {
		return ErrNotOpen
	}
	if len(frame) != len(channels) {
		return &ShapeError{Channel: -1, Got: len(frame), Want: len(channels)}
	}

	for i, samples := range frame {
		freq := channels[i].SampleFrequency
		if freq < 1 || len(samples) == 0 || len(samples)%freq != 0 {
			return &ShapeError{Channel: i, Got: len(samples), Want: freq}
		}
		for start := 0; start < len(samples); start += freq {
			if err := s.handle.WriteSamples(samples[start : start+freq]); err != nil {
				return &WriteError{Channel: i, Err: err}
			}
		}
	}

	return nil
}

// writeAnnotation forwards one annotation to the engine. No batching, no
// ordering validation.
func (s *session) writeAnnotation(a Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen {
		return ErrNotOpen
	}
	if err := s.handle.WriteAnnotation(a.Onset, a.Duration, a.Description); err != nil {
		return &AnnotationError{Err: err}
	}
	return nil
}

// finish releases the handle exactly once. Calling finish on an unopened
// or already-closed session is a no-op; the handle is considered released
// even when the engine rejects the close.
func (s *session) finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen {
		return nil
	}
	handle := s.handle
	s.handle = nil
	s.state = stateClosed

	if err := handle.Close(); err != nil {
		return &CloseError{Err: err}
	}
	return nil
}
