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
	"math"

	"github.com/go-audio/audio"
)

// cloneFrame makes a shallow copy of a frame: the per-channel slice
// headers are copied, the sample data is shared. Sample slices are never
// mutated after they enter the pipeline, so sharing is safe.
func cloneFrame(f Frame) Frame {
	c := make(Frame, len(f))
	copy(c, f)
	return c
}

func containsNaN(samples []float64) bool {
	for _, v := range samples {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// FramesFromBuffer deinterleaves a go-audio buffer into record-sized
// frames for the given header, one frame per data record period. Every
// channel must declare the same sample frequency (the buffer carries a
// single interleaved stream), the buffer's channel count must match the
// header's, and the per-channel sample count must be a whole number of
// periods; violations return a ShapeError.
func FramesFromBuffer(buf *audio.FloatBuffer, hdr Header) ([]Frame, error) {
	numChannels := len(hdr.Channels)
	if numChannels == 0 {
		return nil, &ShapeError{Channel: -1, Got: 0, Want: 0}
	}
	if buf.Format == nil || buf.Format.NumChannels != numChannels {
		got := 0
		if buf.Format != nil {
			got = buf.Format.NumChannels
		}
		return nil, &ShapeError{Channel: -1, Got: got, Want: numChannels}
	}

	freq := hdr.Channels[0].SampleFrequency
	for i, ch := range hdr.Channels {
		if ch.SampleFrequency != freq {
			return nil, &ShapeError{Channel: i, Got: ch.SampleFrequency, Want: freq}
		}
	}
	if freq < 1 {
		return nil, &ShapeError{Channel: 0, Got: 0, Want: freq}
	}

	if len(buf.Data)%numChannels != 0 {
		return nil, &ShapeError{Channel: -1, Got: len(buf.Data), Want: numChannels}
	}
	perChannel := len(buf.Data) / numChannels
	if perChannel == 0 || perChannel%freq != 0 {
		return nil, &ShapeError{Channel: 0, Got: perChannel, Want: freq}
	}

	frames := make([]Frame, perChannel/freq)
	for f := range frames {
		frame := make(Frame, numChannels)
		for ch := 0; ch < numChannels; ch++ {
			samples := make([]float64, freq)
			for j := 0; j < freq; j++ {
				samples[j] = buf.Data[(f*freq+j)*numChannels+ch]
			}
			frame[ch] = samples
		}
		frames[f] = frame
	}

	return frames, nil
}
