// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edfwrite_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/iceshadows/edfwrite"
	"github.com/iceshadows/edfwrite/internal/codec"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observedWriter(t *testing.T, path string, hdr edfwrite.Header, engine edfwrite.Engine) (*edfwrite.Writer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	w := edfwrite.New(path, hdr,
		edfwrite.WithEngine(engine),
		edfwrite.WithLogger(zap.New(core)))
	return w, logs
}

func TestWriteFramesOrder(t *testing.T) {
	engine := newStubEngine()
	w := edfwrite.New("order.edf", testHeader(2), edfwrite.WithEngine(engine))
	require.NoError(t, w.Open())

	frames := []edfwrite.Frame{
		{{1, 1, 1, 1}, {2, 2, 2, 2}},
		{{3, 3, 3, 3}, {4, 4, 4, 4}},
		{{5, 5, 5, 5}, {6, 6, 6, 6}},
	}
	require.NoError(t, w.WriteFrames(frames))

	// One engine write per channel per frame, channel-index order within
	// each frame, frame order across the batch.
	require.Len(t, engine.handle.writes, 6)
	for i, want := range []float64{1, 2, 3, 4, 5, 6} {
		require.Equal(t, []float64{want, want, want, want}, engine.handle.writes[i])
	}
}

func TestWriteFrameIsBatchOfOne(t *testing.T) {
	engine := newStubEngine()
	w := edfwrite.New("single.edf", testHeader(2), edfwrite.WithEngine(engine))
	require.NoError(t, w.Open())

	require.NoError(t, w.WriteFrame(edfwrite.Frame{{1, 1, 1, 1}, {2, 2, 2, 2}}))
	require.Len(t, engine.handle.writes, 2)
}

func TestEmptyBatchIsNoOp(t *testing.T) {
	engine := newStubEngine()
	w := edfwrite.New("empty.edf", testHeader(2), edfwrite.WithEngine(engine))
	require.NoError(t, w.Open())

	require.NoError(t, w.WriteFrames(nil))
	require.NoError(t, w.WriteFrames([]edfwrite.Frame{}))
	require.Empty(t, engine.handle.writes)
}

func TestWriteBeforeOpen(t *testing.T) {
	w := edfwrite.New("unopened.edf", testHeader(1), edfwrite.WithEngine(newStubEngine()))
	require.ErrorIs(t, w.WriteFrame(edfwrite.Frame{{1, 2, 3, 4}}), edfwrite.ErrNotOpen)
	require.ErrorIs(t, w.WriteAnnotation(edfwrite.Annotation{Description: "x"}), edfwrite.ErrNotOpen)
}

func TestChannelCountRepair(t *testing.T) {
	engine := newStubEngine()
	w, logs := observedWriter(t, "countrepair.edf", testHeader(2), engine)
	require.NoError(t, w.Open())

	f0 := edfwrite.Frame{{1, 1, 1, 1}, {2, 2, 2, 2}}
	f1 := edfwrite.Frame{{9, 9, 9, 9}} // glitched: one channel missing
	require.NoError(t, w.WriteFrames([]edfwrite.Frame{f0, f1}))

	// F0 is written, then F0's content again in place of F1.
	require.Len(t, engine.handle.writes, 4)
	require.Equal(t, engine.handle.writes[0], engine.handle.writes[2])
	require.Equal(t, engine.handle.writes[1], engine.handle.writes[3])

	require.Len(t, logs.FilterMessage("frame channel count differs from previous accepted frame, substituting previous frame").All(), 1)
}

func TestNaNChannelRepair(t *testing.T) {
	engine := newStubEngine()
	w, logs := observedWriter(t, "nanrepair.edf", testHeader(3), engine)
	require.NoError(t, w.Open())

	f0 := edfwrite.Frame{{1, 1, 1, 1}, {2, 2, 2, 2}, {3, 3, 3, 3}}
	f1 := edfwrite.Frame{{4, 4, 4, 4}, {5, 5, 5, 5}, {6, math.NaN(), 6, 6}}
	require.NoError(t, w.WriteFrames([]edfwrite.Frame{f0, f1}))

	require.Len(t, engine.handle.writes, 6)
	// Channels 0 and 1 of F1 are written verbatim; only channel 2 is
	// replaced with F0's channel-2 data.
	require.Equal(t, []float64{4, 4, 4, 4}, engine.handle.writes[3])
	require.Equal(t, []float64{5, 5, 5, 5}, engine.handle.writes[4])
	require.Equal(t, []float64{3, 3, 3, 3}, engine.handle.writes[5])

	require.Len(t, logs.FilterMessage("channel contains NaN samples, substituting previous frame's channel data").All(), 1)

	// The caller's frame is left intact.
	require.True(t, math.IsNaN(f1[2][1]))
}

func TestRepairedFrameBecomesPrevious(t *testing.T) {
	engine := newStubEngine()
	w, _ := observedWriter(t, "chain.edf", testHeader(1), engine)
	require.NoError(t, w.Open())

	frames := []edfwrite.Frame{
		{{1, 1, 1, 1}},
		{{2, math.NaN(), 2, 2}}, // repaired to frame 0's data
		{{3, math.NaN(), 3, 3}}, // repaired to the repaired frame 1, still frame 0's data
	}
	require.NoError(t, w.WriteFrames(frames))

	require.Len(t, engine.handle.writes, 3)
	require.Equal(t, []float64{1, 1, 1, 1}, engine.handle.writes[1])
	require.Equal(t, []float64{1, 1, 1, 1}, engine.handle.writes[2])
}

func TestSampleCountMismatchWarnsButWrites(t *testing.T) {
	engine := newStubEngine()
	w, logs := observedWriter(t, "mismatch.edf", testHeader(1), engine)
	require.NoError(t, w.Open())

	// Two whole periods in one channel buffer: warned, then chunked into
	// two engine writes.
	require.NoError(t, w.WriteFrame(edfwrite.Frame{{1, 2, 3, 4, 5, 6, 7, 8}}))
	require.Len(t, engine.handle.writes, 2)
	require.Equal(t, []float64{1, 2, 3, 4}, engine.handle.writes[0])
	require.Equal(t, []float64{5, 6, 7, 8}, engine.handle.writes[1])

	require.Len(t, logs.FilterMessage("channel sample count differs from declared sample frequency").All(), 1)
}

func TestShapeErrorFailsBatch(t *testing.T) {
	engine := newStubEngine()
	w := edfwrite.New("shape.edf", testHeader(1), edfwrite.WithEngine(engine))
	require.NoError(t, w.Open())

	err := w.WriteFrame(edfwrite.Frame{{1, 2, 3, 4, 5}})
	var shapeErr *edfwrite.ShapeError
	require.ErrorAs(t, err, &shapeErr)
	require.Equal(t, 0, shapeErr.Channel)
	require.Equal(t, 5, shapeErr.Got)
	require.Equal(t, 4, shapeErr.Want)
	require.Empty(t, engine.handle.writes)
}

func TestWriteErrorPropagates(t *testing.T) {
	engine := newStubEngine()
	engine.handle.writeErr = errEngine

	w := edfwrite.New("writeerr.edf", testHeader(1), edfwrite.WithEngine(engine))
	require.NoError(t, w.Open())

	err := w.WriteFrame(edfwrite.Frame{{1, 2, 3, 4}})
	var writeErr *edfwrite.WriteError
	require.ErrorAs(t, err, &writeErr)
	require.Equal(t, 0, writeErr.Channel)
	require.ErrorIs(t, err, errEngine)
}

func TestAnnotationSink(t *testing.T) {
	engine := newStubEngine()
	w := edfwrite.New("annot.edf", testHeader(1), edfwrite.WithEngine(engine))
	require.NoError(t, w.Open())

	require.NoError(t, w.WriteAnnotation(edfwrite.Annotation{Onset: -500_000, Description: "pre-recording marker"}))
	require.NoError(t, w.WriteAnnotation(edfwrite.Annotation{Onset: 1_000_000, Duration: 2_000_000, Description: "apnea"}))

	require.Equal(t, []stubAnnotation{
		{-500_000, 0, "pre-recording marker"},
		{1_000_000, 2_000_000, "apnea"},
	}, engine.handle.annotations)
}

func TestAnnotationErrorPropagates(t *testing.T) {
	engine := newStubEngine()
	engine.handle.annotErr = errEngine

	w := edfwrite.New("annoterr.edf", testHeader(1), edfwrite.WithEngine(engine))
	require.NoError(t, w.Open())

	var annotErr *edfwrite.AnnotationError
	require.ErrorAs(t, w.WriteAnnotation(edfwrite.Annotation{Description: "x"}), &annotErr)
	require.ErrorIs(t, annotErr, errEngine)
}

// TestRecordingScenario drives the whole lifecycle against the built-in
// codec engine: 2 channels at 256 Hz, 10 one-second frames of sine data,
// start/end annotations, then verifies the written file by reading it back.
func TestRecordingScenario(t *testing.T) {
	for _, ext := range []string{"edf", "bdf"} {
		t.Run(ext, func(t *testing.T) {
			const (
				sampleRate = 256
				seconds    = 10
			)

			hdr := edfwrite.Header{
				Patient: edfwrite.PatientInfo{
					Name:       "Demo",
					Code:       "0001",
					Sex:        edfwrite.Female,
					AdminCode:  "0001",
					Technician: "Tech",
					Equipment:  "Generator",
				},
				Channels: []edfwrite.Channel{
					{
						Label:             "Sine20Hz",
						Transducer:        "AgAgCl cup electrodes",
						DigitalMin:        -32768,
						DigitalMax:        32767,
						PhysicalMin:       -2000,
						PhysicalMax:       2000,
						PhysicalDimension: "mV",
						SampleFrequency:   sampleRate,
					},
					{
						Label:             "Sine50Hz",
						Transducer:        "AgAgCl cup electrodes",
						DigitalMin:        -32768,
						DigitalMax:        32767,
						PhysicalMin:       -2000,
						PhysicalMax:       2000,
						PhysicalDimension: "mV",
						SampleFrequency:   sampleRate,
					},
				},
			}

			sine := func(freq float64, i int) float64 {
				at := float64(i%sampleRate) / sampleRate
				return math.Sin(2*math.Pi*freq*at) * 1000
			}

			var frames []edfwrite.Frame
			for s := 0; s < seconds; s++ {
				ch0 := make([]float64, sampleRate)
				ch1 := make([]float64, sampleRate)
				for i := 0; i < sampleRate; i++ {
					ch0[i] = sine(20, i)
					ch1[i] = sine(50, i)
				}
				frames = append(frames, edfwrite.Frame{ch0, ch1})
			}

			path := filepath.Join(t.TempDir(), "recording."+ext)
			w := edfwrite.New(path, hdr)
			require.NoError(t, w.Open())
			defer w.Close()

			require.NoError(t, w.WriteFrames(frames))
			require.NoError(t, w.WriteAnnotation(edfwrite.Annotation{Onset: 0, Description: "Start of recording"}))
			require.NoError(t, w.WriteAnnotation(edfwrite.Annotation{Onset: seconds * 1_000_000, Description: "End of recording"}))
			require.NoError(t, w.Finish())

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NotEmpty(t, raw)
			require.Contains(t, string(raw), "Start of recording")
			require.Contains(t, string(raw), "End of recording")

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			r, err := codec.OpenReader(f)
			require.NoError(t, err)

			info := r.Info()
			require.Equal(t, seconds, info.DataRecords)
			// Two data signals plus the annotation pseudo-channel.
			require.Equal(t, 3, info.SignalCount)
			require.Equal(t, "Sine20Hz", info.Signals[0].Label)
			require.Equal(t, "Sine50Hz", info.Signals[1].Label)
			require.Equal(t, sampleRate, info.Signals[0].SamplesPerRecord)
			require.Equal(t, sampleRate, info.Signals[1].SamplesPerRecord)

			for ch, freq := range []float64{20, 50} {
				sr, err := r.Signal(ch)
				require.NoError(t, err)

				samples := make([]float64, sampleRate*seconds)
				n, err := sr.Read(samples)
				require.NoError(t, err)
				require.Equal(t, sampleRate*seconds, n)

				for i, got := range samples {
					require.InDelta(t, sine(freq, i), got, 0.1)
				}
			}
		})
	}
}
