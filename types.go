// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edfwrite

// Sex of the patient, per the EDF+ patient identification convention.
type Sex int

const (
	Female Sex = 0
	Male   Sex = 1
)

// PatientInfo identifies the patient and the recording staff/equipment.
// All fields are free text except Sex; empty fields are written as unknown.
type PatientInfo struct {
	Name       string // Name of the patient
	Code       string // Hospital or study code identifying the patient
	Sex        Sex
	AdminCode  string // Administration code of the recording
	Technician string // Technician who made the recording
	Equipment  string // Equipment the recording was made with
}

// Channel describes one signal in the recording. Channels are ordered and
// the order must match the order of per-frame sample slices supplied at
// write time.
type Channel struct {
	Label             string  // Label of the signal (e.g., EEG Fpz-Cz)
	Transducer        string  // Type of transducer used (e.g., AgAgCl electrode)
	DigitalMin        int     // Minimum digital value, must be < DigitalMax
	DigitalMax        int     // Maximum digital value
	PhysicalMin       float64 // Minimum physical value, must be < PhysicalMax
	PhysicalMax       float64 // Maximum physical value
	PhysicalDimension string  // Physical dimension (e.g., uV, mV)
	SampleFrequency   int     // Samples per data record period, positive
}

// Header describes one recording: the patient plus the ordered channel
// list. It is treated as immutable once passed to Open; the channel count
// is fixed at open time and cannot change afterward.
type Header struct {
	Patient  PatientInfo
	Channels []Channel
}

// Annotation is a timestamped text event embedded in the recording.
// Onset may be negative for pre-recording markers, per EDF+ convention.
// The writer does not enforce any ordering between annotations.
type Annotation struct {
	Onset       int64  // Onset of the event in microseconds
	Duration    int64  // Duration of the event in microseconds, >= 0
	Description string // Free-text description of the event
}

// Frame holds one data record period's worth of samples: one physical
// sample slice per channel, index-aligned with Header.Channels.
type Frame [][]float64
