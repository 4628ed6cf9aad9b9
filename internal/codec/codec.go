// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package codec implements the byte-level EDF+/BDF+ container: the
// fixed-width ASCII header, channel-major fixed-duration data records and
// the TAL-encoded annotation pseudo-channel. It is the built-in engine
// behind the edfwrite package and is not part of the public module
// surface.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const version = "1.2.1"

// Version reports the codec engine version.
func Version() string { return version }

// Filetype selects the container variant.
type Filetype int

const (
	// FiletypeEDF is the 16-bit European Data Format container (EDF+).
	FiletypeEDF Filetype = iota
	// FiletypeBDF is the 24-bit BioSemi variant (BDF+).
	FiletypeBDF
)

// Annotation channel positions within the record's signal order.
const (
	AnnotationsStart = iota
	AnnotationsMiddle
	AnnotationsEnd
)

const (
	// annotationBytes is the size of one annotation signal's block in
	// each data record. Divisible by both sample widths.
	annotationBytes = 120

	// Data record durations expressible by the container, in
	// 10-microsecond ticks.
	minDurationTicks = 100
	maxDurationTicks = 6_000_000

	maxSignals          = 640
	maxAnnotationSignal = 64
)

var (
	errClosed  = errors.New("codec: file closed")
	errStarted = errors.New("codec: header already committed, cannot change parameters")
)

type annotation struct {
	onset    int64 // microseconds
	duration int64 // microseconds
	text     string
}

// formatTicks renders a 10-microsecond tick count as decimal seconds
// without trailing zeros.
func formatTicks(ticks int64) string {
	sec := ticks / 100_000
	frac := ticks % 100_000
	if frac == 0 {
		return strconv.FormatInt(sec, 10)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%05d", sec, frac), "0")
}

// formatMicros renders a non-negative microsecond count as decimal seconds
// without trailing zeros.
func formatMicros(us int64) string {
	sec := us / 1_000_000
	frac := us % 1_000_000
	if frac == 0 {
		return strconv.FormatInt(sec, 10)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%06d", sec, frac), "0")
}

// encodeTAL encodes one annotation as a time-stamped annotation list
// entry: +onset[<21>duration]<20>text<20><0>, onsets signed per EDF+.
func encodeTAL(a annotation) []byte {
	var b []byte
	if a.onset < 0 {
		b = append(b, '-')
		b = append(b, formatMicros(-a.onset)...)
	} else {
		b = append(b, '+')
		b = append(b, formatMicros(a.onset)...)
	}
	if a.duration > 0 {
		b = append(b, 0x15)
		b = append(b, formatMicros(a.duration)...)
	}
	b = append(b, 0x14)
	b = append(b, a.text...)
	b = append(b, 0x14, 0x00)
	return b
}

// timekeepingTAL is the mandatory first TAL of each data record's
// annotation signal, carrying the record's onset.
func timekeepingTAL(record int, durationTicks int) []byte {
	onset := "+" + formatTicks(int64(record)*int64(durationTicks))
	b := make([]byte, 0, len(onset)+3)
	b = append(b, onset...)
	b = append(b, 0x14, 0x14, 0x00)
	return b
}
