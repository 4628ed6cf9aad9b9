// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package codec

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// SignalInfo describes one signal parsed back from a file header,
// including annotation pseudo-signals.
type SignalInfo struct {
	Label             string
	Transducer        string
	PhysicalDimension string
	PhysicalMin       float64
	PhysicalMax       float64
	DigitalMin        int
	DigitalMax        int
	SamplesPerRecord  int
}

// FileInfo describes a parsed EDF/BDF header.
type FileInfo struct {
	Filetype       Filetype
	PatientID      string
	RecordingID    string
	StartTime      time.Time
	HeaderBytes    int
	DataRecords    int
	RecordDuration time.Duration
	SignalCount    int
	Signals        []SignalInfo
}

// Reader reads back EDF/BDF files written by this package. It exists so
// written output can be independently verified; reading is not part of the
// module's public surface.
type Reader struct {
	r    io.ReadSeeker
	info *FileInfo
	bps  int
}

// OpenReader parses the header of an EDF/BDF file.
func OpenReader(r io.ReadSeeker) (*Reader, error) {
	br := bufio.NewReader(r)

	b := make([]byte, 256)
	if _, err := io.ReadFull(br, b); err != nil {
		return nil, fmt.Errorf("codec: reading header: %w", err)
	}

	info := &FileInfo{}
	bps := 2
	if b[0] == 0xff {
		info.Filetype = FiletypeBDF
		bps = 3
	}

	info.PatientID = strings.TrimSpace(string(b[8:88]))
	info.RecordingID = strings.TrimSpace(string(b[88:168]))

	startDate, err := time.Parse("02.01.06", strings.TrimSpace(string(b[168:176])))
	if err != nil {
		return nil, fmt.Errorf("codec: parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", strings.TrimSpace(string(b[176:184])))
	if err != nil {
		return nil, fmt.Errorf("codec: parsing start time: %w", err)
	}
	info.StartTime = time.Date(startDate.Year(), startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC)

	info.HeaderBytes, err = strconv.Atoi(strings.TrimSpace(string(b[184:192])))
	if err != nil {
		return nil, fmt.Errorf("codec: parsing header bytes: %w", err)
	}
	info.DataRecords, err = strconv.Atoi(strings.TrimSpace(string(b[236:244])))
	if err != nil {
		return nil, fmt.Errorf("codec: parsing data record count: %w", err)
	}
	info.RecordDuration, err = time.ParseDuration(strings.TrimSpace(string(b[244:252])) + "s")
	if err != nil {
		return nil, fmt.Errorf("codec: parsing record duration: %w", err)
	}
	info.SignalCount, err = strconv.Atoi(strings.TrimSpace(string(b[252:256])))
	if err != nil {
		return nil, fmt.Errorf("codec: parsing signal count: %w", err)
	}

	info.Signals = make([]SignalInfo, info.SignalCount)

	readColumn := func(width int, assign func(i int, field string)) error {
		buf := make([]byte, width)
		for i := 0; i < info.SignalCount; i++ {
			if _, err := io.ReadFull(br, buf); err != nil {
				return fmt.Errorf("codec: reading signal headers: %w", err)
			}
			assign(i, strings.TrimSpace(string(buf)))
		}
		return nil
	}

	columns := []struct {
		width  int
		assign func(i int, field string)
	}{
		{16, func(i int, f string) { info.Signals[i].Label = f }},
		{80, func(i int, f string) { info.Signals[i].Transducer = f }},
		{8, func(i int, f string) { info.Signals[i].PhysicalDimension = f }},
		{8, func(i int, f string) { info.Signals[i].PhysicalMin = parseFloat(f) }},
		{8, func(i int, f string) { info.Signals[i].PhysicalMax = parseFloat(f) }},
		{8, func(i int, f string) { info.Signals[i].DigitalMin = parseInt(f) }},
		{8, func(i int, f string) { info.Signals[i].DigitalMax = parseInt(f) }},
		{80, func(i int, f string) {}}, // prefiltering, unused
		{8, func(i int, f string) { info.Signals[i].SamplesPerRecord = parseInt(f) }},
		{32, func(i int, f string) {}}, // reserved
	}
	for _, col := range columns {
		if err := readColumn(col.width, col.assign); err != nil {
			return nil, err
		}
	}

	return &Reader{r: r, info: info, bps: bps}, nil
}

// Info returns the parsed header.
func (r *Reader) Info() *FileInfo {
	return r.info
}

// SignalReader reads continuous physical sample data for one signal.
type SignalReader struct {
	r             io.ReadSeeker
	info          *FileInfo
	bps           int
	signalIndex   int
	currentRecord int
	currentSample int
	recordSize    int // total bytes of one data record
	signalOffset  int // byte offset of the signal within a record
	samples       int // samples per record for this signal
}

// Signal creates a SignalReader for the given signal index.
func (r *Reader) Signal(signalIndex int) (*SignalReader, error) {
	if signalIndex < 0 || signalIndex >= len(r.info.Signals) {
		return nil, fmt.Errorf("codec: signal index %d out of range", signalIndex)
	}

	recordSize := 0
	signalOffset := 0
	for i, sig := range r.info.Signals {
		if i < signalIndex {
			signalOffset += sig.SamplesPerRecord * r.bps
		}
		recordSize += sig.SamplesPerRecord * r.bps
	}

	return &SignalReader{
		r:            r.r,
		info:         r.info,
		bps:          r.bps,
		signalIndex:  signalIndex,
		recordSize:   recordSize,
		signalOffset: signalOffset,
		samples:      r.info.Signals[signalIndex].SamplesPerRecord,
	}, nil
}

// Read fills data with the signal's physical values, advancing across
// data records. It returns io.EOF once all records are consumed.
func (sr *SignalReader) Read(data []float64) (int, error) {
	buf := make([]byte, sr.bps)
	sig := sr.info.Signals[sr.signalIndex]

	n := 0
	for n < len(data) {
		if sr.currentRecord >= sr.info.DataRecords {
			return n, io.EOF
		}

		pos := int64(sr.info.HeaderBytes) +
			int64(sr.currentRecord)*int64(sr.recordSize) +
			int64(sr.signalOffset) +
			int64(sr.currentSample*sr.bps)
		if _, err := sr.r.Seek(pos, io.SeekStart); err != nil {
			return n, fmt.Errorf("codec: seeking to sample: %w", err)
		}
		if _, err := io.ReadFull(sr.r, buf); err != nil {
			return n, fmt.Errorf("codec: reading sample data: %w", err)
		}

		data[n] = digitalToPhysical(decodeSample(buf), sig)
		n++

		sr.currentSample++
		if sr.currentSample >= sr.samples {
			sr.currentSample = 0
			sr.currentRecord++
		}
	}

	return n, nil
}

// decodeSample decodes a little-endian two's complement sample of 2 or 3
// bytes.
func decodeSample(b []byte) int {
	if len(b) == 2 {
		return int(int16(uint16(b[0]) | uint16(b[1])<<8))
	}
	v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if v&0x800000 != 0 {
		v |= ^int32(0xffffff)
	}
	return int(v)
}

// digitalToPhysical rescales a stored digital value back to physical units
// using the signal's calibration.
func digitalToPhysical(d int, sig SignalInfo) float64 {
	if sig.DigitalMax == sig.DigitalMin {
		return 0
	}
	return sig.PhysicalMin + (float64(d)-float64(sig.DigitalMin))*
		(sig.PhysicalMax-sig.PhysicalMin)/float64(sig.DigitalMax-sig.DigitalMin)
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}
