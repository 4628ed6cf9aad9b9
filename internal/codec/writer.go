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
	"math"
	"os"
	"strings"
	"time"
)

type signal struct {
	label      string
	transducer string
	physDim    string
	physMin    float64
	physMax    float64
	digMin     int
	digMax     int
	samples    int // samples per data record
}

// File is one open output file: a write-only handle in the sense of the
// classic edflib ABI. All header parameters must be set before the first
// WriteSamples call commits the header; annotations may be written at any
// time before Close and are placed into the reserved annotation blocks of
// already-written records when the file is closed.
//
// File is not safe for concurrent use.
type File struct {
	f  *os.File
	ft Filetype

	patientName string
	patientCode string
	sex         int // 0 female, 1 male, anything else unknown
	adminCode   string
	technician  string
	equipment   string
	additional  string

	signals       []signal
	durationTicks int
	annotSignals  int
	annotPos      int
	startTime     time.Time

	headerWritten bool
	headerBytes   int
	recordBytes   int
	layout        []int // signal order in header and records; -1 marks an annotation signal

	nextSignal  int
	recordBuf   [][]byte
	dataRecords int

	annotations []annotation
	closed      bool
}

// Create opens path for writing with signalCount signal slots. Parameters
// default to a one-second record duration and a single annotation signal
// placed after the data signals.
func Create(path string, ft Filetype, signalCount int) (*File, error) {
	if signalCount < 1 || signalCount > maxSignals {
		return nil, fmt.Errorf("codec: unsupported signal count %d", signalCount)
	}
	if ft != FiletypeEDF && ft != FiletypeBDF {
		return nil, fmt.Errorf("codec: unsupported filetype %d", ft)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}

	return &File{
		f:             f,
		ft:            ft,
		sex:           -1,
		signals:       make([]signal, signalCount),
		durationTicks: 100_000, // one second
		annotSignals:  1,
		annotPos:      AnnotationsEnd,
		startTime:     time.Now(),
	}, nil
}

func (e *File) bytesPerSample() int {
	if e.ft == FiletypeBDF {
		return 3
	}
	return 2
}

func (e *File) digitalLimits() (int, int) {
	if e.ft == FiletypeBDF {
		return -8388608, 8388607
	}
	return -32768, 32767
}

// setterGuard rejects parameter changes on a closed handle or after the
// header has been committed by the first sample write.
func (e *File) setterGuard() error {
	if e.closed {
		return errClosed
	}
	if e.headerWritten {
		return errStarted
	}
	return nil
}

func (e *File) signalGuard(ch int) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	if ch < 0 || ch >= len(e.signals) {
		return fmt.Errorf("codec: signal index %d out of range [0, %d)", ch, len(e.signals))
	}
	return nil
}

func (e *File) SetPatientName(name string) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	e.patientName = name
	return nil
}

func (e *File) SetPatientCode(code string) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	e.patientCode = code
	return nil
}

func (e *File) SetSex(sex int) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	if sex != 0 && sex != 1 {
		return fmt.Errorf("codec: invalid sex %d", sex)
	}
	e.sex = sex
	return nil
}

func (e *File) SetAdminCode(code string) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	e.adminCode = code
	return nil
}

func (e *File) SetTechnician(name string) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	e.technician = name
	return nil
}

func (e *File) SetEquipment(name string) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	e.equipment = name
	return nil
}

func (e *File) SetRecordingAdditional(info string) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	e.additional = info
	return nil
}

func (e *File) SetLabel(ch int, label string) error {
	if err := e.signalGuard(ch); err != nil {
		return err
	}
	e.signals[ch].label = label
	return nil
}

func (e *File) SetTransducer(ch int, transducer string) error {
	if err := e.signalGuard(ch); err != nil {
		return err
	}
	e.signals[ch].transducer = transducer
	return nil
}

func (e *File) SetDigitalMaximum(ch int, max int) error {
	if err := e.signalGuard(ch); err != nil {
		return err
	}
	lo, hi := e.digitalLimits()
	if max < lo || max > hi {
		return fmt.Errorf("codec: digital maximum %d outside container range [%d, %d]", max, lo, hi)
	}
	e.signals[ch].digMax = max
	return nil
}

func (e *File) SetDigitalMinimum(ch int, min int) error {
	if err := e.signalGuard(ch); err != nil {
		return err
	}
	lo, hi := e.digitalLimits()
	if min < lo || min > hi {
		return fmt.Errorf("codec: digital minimum %d outside container range [%d, %d]", min, lo, hi)
	}
	e.signals[ch].digMin = min
	return nil
}

func (e *File) SetPhysicalMaximum(ch int, max float64) error {
	if err := e.signalGuard(ch); err != nil {
		return err
	}
	e.signals[ch].physMax = max
	return nil
}

func (e *File) SetPhysicalMinimum(ch int, min float64) error {
	if err := e.signalGuard(ch); err != nil {
		return err
	}
	e.signals[ch].physMin = min
	return nil
}

func (e *File) SetPhysicalDimension(ch int, dim string) error {
	if err := e.signalGuard(ch); err != nil {
		return err
	}
	e.signals[ch].physDim = dim
	return nil
}

func (e *File) SetSampleFrequency(ch int, freq int) error {
	if err := e.signalGuard(ch); err != nil {
		return err
	}
	if freq < 1 {
		return fmt.Errorf("codec: invalid sample frequency %d", freq)
	}
	e.signals[ch].samples = freq
	return nil
}

func (e *File) SetDatarecordDuration(ticks int) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	if ticks < minDurationTicks || ticks > maxDurationTicks {
		return fmt.Errorf("codec: data record duration %d ticks outside range [%d, %d]", ticks, minDurationTicks, maxDurationTicks)
	}
	e.durationTicks = ticks
	return nil
}

func (e *File) SetNumberOfAnnotationSignals(n int) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	if n < 1 || n > maxAnnotationSignal {
		return fmt.Errorf("codec: invalid annotation signal count %d", n)
	}
	e.annotSignals = n
	return nil
}

func (e *File) SetAnnotationPosition(pos int) error {
	if err := e.setterGuard(); err != nil {
		return err
	}
	if pos < AnnotationsStart || pos > AnnotationsEnd {
		return fmt.Errorf("codec: invalid annotation position %d", pos)
	}
	e.annotPos = pos
	return nil
}

// start validates the signal parameters, fixes the record layout and
// commits the header. Called by the first WriteSamples.
func (e *File) start() error {
	for i, sig := range e.signals {
		if sig.samples < 1 {
			return fmt.Errorf("codec: signal %d: sample frequency not set", i)
		}
		if sig.digMin >= sig.digMax {
			return fmt.Errorf("codec: signal %d: digital range [%d, %d] is invalid", i, sig.digMin, sig.digMax)
		}
		if sig.physMin >= sig.physMax {
			return fmt.Errorf("codec: signal %d: physical range [%g, %g] is invalid", i, sig.physMin, sig.physMax)
		}
	}

	e.layout = buildLayout(len(e.signals), e.annotSignals, e.annotPos)
	e.headerBytes = 256 * (1 + len(e.layout))
	e.recordBytes = 0
	for _, idx := range e.layout {
		if idx >= 0 {
			e.recordBytes += e.signals[idx].samples * e.bytesPerSample()
		} else {
			e.recordBytes += annotationBytes
		}
	}
	e.recordBuf = make([][]byte, len(e.signals))

	if err := e.writeHeader(-1); err != nil {
		return err
	}
	e.headerWritten = true
	return nil
}

// buildLayout orders the data signals and inserts the annotation signals
// as one consecutive run at the requested position.
func buildLayout(signalCount, annotSignals, pos int) []int {
	insert := signalCount // AnnotationsEnd
	switch pos {
	case AnnotationsStart:
		insert = 0
	case AnnotationsMiddle:
		insert = signalCount / 2
	}

	layout := make([]int, 0, signalCount+annotSignals)
	for i := 0; i < insert; i++ {
		layout = append(layout, i)
	}
	for i := 0; i < annotSignals; i++ {
		layout = append(layout, -1)
	}
	for i := insert; i < signalCount; i++ {
		layout = append(layout, i)
	}
	return layout
}

// WriteSamples writes one data record's worth of physical samples for the
// next signal in rotation. The sample count must equal the signal's
// declared samples-per-record; when the last signal of a record lands, the
// record is flushed to disk.
func (e *File) WriteSamples(samples []float64) error {
	if e.closed {
		return errClosed
	}
	if !e.headerWritten {
		if err := e.start(); err != nil {
			return err
		}
	}

	idx := e.nextSignal
	sig := e.signals[idx]
	if len(samples) != sig.samples {
		return fmt.Errorf("codec: signal %d: got %d samples, want %d per record", idx, len(samples), sig.samples)
	}

	bps := e.bytesPerSample()
	buf := make([]byte, 0, len(samples)*bps)
	for _, v := range samples {
		buf = appendSample(buf, physicalToDigital(v, sig), bps)
	}
	e.recordBuf[idx] = buf

	e.nextSignal++
	if e.nextSignal == len(e.signals) {
		e.nextSignal = 0
		return e.flushRecord()
	}
	return nil
}

// flushRecord assembles the buffered signal blocks in layout order,
// reserving zero-filled annotation blocks led by the record's timekeeping
// TAL, and appends the record to the file.
func (e *File) flushRecord() error {
	rec := make([]byte, 0, e.recordBytes)
	first := true
	for _, idx := range e.layout {
		if idx >= 0 {
			rec = append(rec, e.recordBuf[idx]...)
			continue
		}
		block := make([]byte, annotationBytes)
		if first {
			copy(block, timekeepingTAL(e.dataRecords, e.durationTicks))
			first = false
		}
		rec = append(rec, block...)
	}

	if _, err := e.f.Write(rec); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	e.dataRecords++
	return nil
}

// WriteAnnotation queues one annotation. Annotations are encoded into the
// annotation blocks of written records when the file is closed, in
// arrival order, as many per record as fit.
func (e *File) WriteAnnotation(onsetMicros, durationMicros int64, description string) error {
	if e.closed {
		return errClosed
	}
	a := annotation{onset: onsetMicros, duration: durationMicros, text: description}
	if len(encodeTAL(a)) > annotationBytes-16 {
		return fmt.Errorf("codec: annotation %q does not fit in a %d-byte annotation block", description, annotationBytes)
	}
	e.annotations = append(e.annotations, a)
	return nil
}

// patchAnnotations rewrites the annotation blocks of written records with
// the queued annotations. A TAL never straddles two annotation signals.
func (e *File) patchAnnotations() error {
	if len(e.annotations) == 0 || e.dataRecords == 0 {
		return nil
	}

	blockOff := 0
	for _, idx := range e.layout {
		if idx < 0 {
			break
		}
		blockOff += e.signals[idx].samples * e.bytesPerSample()
	}

	queue := e.annotations
	e.annotations = nil
	for rec := 0; rec < e.dataRecords && len(queue) > 0; rec++ {
		block := make([]byte, annotationBytes*e.annotSignals)
		n := copy(block, timekeepingTAL(rec, e.durationTicks))
		for sub := 0; sub < e.annotSignals && len(queue) > 0; sub++ {
			if sub > 0 {
				n = sub * annotationBytes
			}
			limit := (sub + 1) * annotationBytes
			for len(queue) > 0 {
				tal := encodeTAL(queue[0])
				if n+len(tal) > limit {
					break
				}
				n += copy(block[n:], tal)
				queue = queue[1:]
			}
		}

		pos := int64(e.headerBytes) + int64(rec)*int64(e.recordBytes) + int64(blockOff)
		if _, err := e.f.WriteAt(block, pos); err != nil {
			return fmt.Errorf("codec: %w", err)
		}
	}
	return nil
}

// Close finalizes the file: queued annotations are placed into the written
// records, the header is rewritten with the final record count and the
// descriptor is released. A partially buffered record is discarded. The
// descriptor is released even when finalization fails.
func (e *File) Close() error {
	if e.closed {
		return errClosed
	}
	e.closed = true

	if !e.headerWritten {
		// No record was ever completed and the parameters may not even
		// validate; there is nothing to finalize.
		e.f.Close()
		return nil
	}

	var firstErr error
	if err := e.patchAnnotations(); err != nil {
		firstErr = err
	}
	if err := e.writeHeader(e.dataRecords); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.f.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("codec: %w", err)
	}
	return firstErr
}

// writeHeader writes the fixed-width ASCII header from the start of the
// file. Called once with an unknown record count (-1) when the first
// record lands, and again at close with the final count.
func (e *File) writeHeader(records int) error {
	if _, err := e.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("codec: %w", err)
	}

	w := bufio.NewWriter(e.f)

	// Version field: "0" for EDF, 0xFF "BIOSEMI" for BDF.
	if e.ft == FiletypeBDF {
		w.WriteByte(0xff)
		fmt.Fprintf(w, "%-7s", "BIOSEMI")
	} else {
		fmt.Fprintf(w, "%-8s", "0")
	}

	fmt.Fprintf(w, "%-80s", clipText(e.patientField(), 80))
	fmt.Fprintf(w, "%-80s", clipText(e.recordingField(), 80))
	fmt.Fprintf(w, "%-8s", e.startTime.Format("02.01.06"))
	fmt.Fprintf(w, "%-8s", e.startTime.Format("15.04.05"))
	fmt.Fprintf(w, "%-8d", e.headerBytes)

	reserved := "EDF+C"
	if e.ft == FiletypeBDF {
		reserved = "BDF+C"
	}
	fmt.Fprintf(w, "%-44s", reserved)
	fmt.Fprintf(w, "%-8d", records)
	fmt.Fprintf(w, "%-8s", formatTicks(int64(e.durationTicks)))
	fmt.Fprintf(w, "%-4d", len(e.layout))

	annotLabel := "EDF Annotations"
	if e.ft == FiletypeBDF {
		annotLabel = "BDF Annotations"
	}
	annotSamples := annotationBytes / e.bytesPerSample()
	digMin, digMax := e.digitalLimits()

	for _, idx := range e.layout {
		if idx >= 0 {
			fmt.Fprintf(w, "%-16s", clipText(e.signals[idx].label, 16))
		} else {
			fmt.Fprintf(w, "%-16s", annotLabel)
		}
	}
	for _, idx := range e.layout {
		if idx >= 0 {
			fmt.Fprintf(w, "%-80s", clipText(e.signals[idx].transducer, 80))
		} else {
			fmt.Fprintf(w, "%-80s", "")
		}
	}
	for _, idx := range e.layout {
		if idx >= 0 {
			fmt.Fprintf(w, "%-8s", clipText(e.signals[idx].physDim, 8))
		} else {
			fmt.Fprintf(w, "%-8s", "")
		}
	}
	for _, idx := range e.layout {
		if idx >= 0 {
			w.WriteString(formatPhysicalValue(e.signals[idx].physMin))
		} else {
			w.WriteString(formatPhysicalValue(-1))
		}
	}
	for _, idx := range e.layout {
		if idx >= 0 {
			w.WriteString(formatPhysicalValue(e.signals[idx].physMax))
		} else {
			w.WriteString(formatPhysicalValue(1))
		}
	}
	for _, idx := range e.layout {
		if idx >= 0 {
			fmt.Fprintf(w, "%-8d", e.signals[idx].digMin)
		} else {
			fmt.Fprintf(w, "%-8d", digMin)
		}
	}
	for _, idx := range e.layout {
		if idx >= 0 {
			fmt.Fprintf(w, "%-8d", e.signals[idx].digMax)
		} else {
			fmt.Fprintf(w, "%-8d", digMax)
		}
	}
	for range e.layout {
		fmt.Fprintf(w, "%-80s", "")
	}
	for _, idx := range e.layout {
		if idx >= 0 {
			fmt.Fprintf(w, "%-8d", e.signals[idx].samples)
		} else {
			fmt.Fprintf(w, "%-8d", annotSamples)
		}
	}
	for range e.layout {
		fmt.Fprintf(w, "%-32s", "")
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	return nil
}

// patientField composes the EDF+ patient identification subfields:
// code sex birthdate name, space-separated, inner spaces as underscores,
// unknown subfields as X.
func (e *File) patientField() string {
	sex := "X"
	switch e.sex {
	case 0:
		sex = "F"
	case 1:
		sex = "M"
	}
	return strings.Join([]string{
		subfield(e.patientCode),
		sex,
		"X", // birthdate is not implemented
		subfield(e.patientName),
	}, " ")
}

// recordingField composes the EDF+ recording identification subfields.
func (e *File) recordingField() string {
	parts := []string{
		"Startdate",
		strings.ToUpper(e.startTime.Format("02-Jan-2006")),
		subfield(e.adminCode),
		subfield(e.technician),
		subfield(e.equipment),
	}
	if e.additional != "" {
		parts = append(parts, subfield(e.additional))
	}
	return strings.Join(parts, " ")
}

func subfield(s string) string {
	if s == "" {
		return "X"
	}
	return strings.ReplaceAll(s, " ", "_")
}

func clipText(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// physicalToDigital rescales a physical value into the signal's digital
// range, rounding to nearest and clipping at the range bounds.
func physicalToDigital(v float64, sig signal) int {
	if math.IsNaN(v) {
		return sig.digMin
	}
	d := (v-sig.physMin)*float64(sig.digMax-sig.digMin)/(sig.physMax-sig.physMin) + float64(sig.digMin)
	n := int(math.Round(d))
	if n > sig.digMax {
		n = sig.digMax
	}
	if n < sig.digMin {
		n = sig.digMin
	}
	return n
}

// appendSample appends one digital sample as little-endian two's
// complement, 2 bytes for EDF or 3 for BDF.
func appendSample(b []byte, v, bps int) []byte {
	if bps == 2 {
		return append(b, byte(v), byte(v>>8))
	}
	return append(b, byte(v), byte(v>>8), byte(v>>16))
}

func formatPhysicalValue(val float64) string {
	// Try with 2 decimal places, fall back to no decimal if it overflows
	// the 8-character field.
	s := fmt.Sprintf("%.2f", val)
	if len(s) > 8 {
		s = fmt.Sprintf("%.0f", val)
	}
	return fmt.Sprintf("%-8s", s)
}
