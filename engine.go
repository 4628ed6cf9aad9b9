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
	"path/filepath"
	"strings"

	"github.com/iceshadows/edfwrite/internal/codec"
)

// Filetype selects the container written by the engine.
type Filetype int

const (
	// EDF is the 16-bit European Data Format container (EDF+).
	EDF Filetype = iota
	// BDF is the 24-bit BioSemi variant (BDF+).
	BDF
)

func (ft Filetype) String() string {
	if ft == BDF {
		return "bdf"
	}
	return "edf"
}

// FiletypeForPath derives the container from the path's extension.
// Unrecognized extensions default to EDF.
func FiletypeForPath(path string) Filetype {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bdf":
		return BDF
	default:
		return EDF
	}
}

// AnnotationPosition selects where the annotation channel sits in each data
// record relative to the signal channels.
type AnnotationPosition int

const (
	AnnotationsStart AnnotationPosition = iota
	AnnotationsMiddle
	AnnotationsEnd
)

// Engine is the codec collaborator that owns the byte-level EDF/BDF
// layout. Open allocates a write-only handle with signalCount signal
// slots; the handle is exclusively owned by the caller.
type Engine interface {
	Open(path string, filetype Filetype, signalCount int) (Handle, error)
}

// Handle is one open output file owned by an Engine. The field setters
// mirror the codec ABI and must be called before the first WriteSamples;
// channel indices are zero-based. Sex, duration and position values use
// the raw ABI encoding (see the typed constants in this package).
//
// WriteSamples writes exactly one data record period's worth of physical
// samples for the next channel in rotation: channel 0 through channel
// signalCount-1, then channel 0 of the next record. No method may be
// called after Close. Handles are not safe for concurrent use; the session
// layer serializes access.
type Handle interface {
	SetPatientName(name string) error
	SetPatientCode(code string) error
	SetSex(sex int) error
	SetAdminCode(code string) error
	SetTechnician(name string) error
	SetEquipment(name string) error
	SetRecordingAdditional(info string) error

	SetLabel(channel int, label string) error
	SetTransducer(channel int, transducer string) error
	SetDigitalMaximum(channel int, max int) error
	SetDigitalMinimum(channel int, min int) error
	SetPhysicalMaximum(channel int, max float64) error
	SetPhysicalMinimum(channel int, min float64) error
	SetPhysicalDimension(channel int, dim string) error
	SetSampleFrequency(channel int, freq int) error

	SetDatarecordDuration(ticks int) error // duration in 10-microsecond ticks
	SetNumberOfAnnotationSignals(n int) error
	SetAnnotationPosition(pos int) error

	WriteSamples(samples []float64) error
	WriteAnnotation(onsetMicros, durationMicros int64, description string) error
	Close() error
}

// defaultEngine adapts the built-in codec to the Engine interface.
type defaultEngine struct{}

func (defaultEngine) Open(path string, filetype Filetype, signalCount int) (Handle, error) {
	f, err := codec.Create(path, codec.Filetype(filetype), signalCount)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// EngineVersion reports the version of the built-in codec engine. It has
// no per-instance state and needs no lifecycle.
func EngineVersion() string {
	return codec.Version()
}
