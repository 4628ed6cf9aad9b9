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

// Writer writes one EDF/BDF recording. Construct it with New, call Open to
// allocate the engine handle and configure the header, push frames and
// annotations, then call Finish (or the equivalent Close) to flush and
// release the handle.
//
// A Writer is safe for concurrent use; frame and annotation writes from
// different goroutines serialize on the underlying handle in whatever
// order they acquire it.
type Writer struct {
	path   string
	header Header
	cfg    *options
	log    *zap.Logger
	sess   *session
}

// New creates a writer for the given output path and header. The path's
// extension selects the container subtype: ".bdf" for BDF, anything else
// for EDF. The header is copied and must not change after Open.
func New(path string, header Header, opts ...Option) *Writer {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt(cfg)
	}

	return &Writer{
		path:   path,
		header: header,
		cfg:    cfg,
		log:    cfg.logger,
		sess:   newSession(cfg.engine),
	}
}

// Open allocates the engine handle and pushes the header configuration.
// On a ConfigError the handle remains open but mid-configured: the writer
// is unusable, but Finish must still be called to release it. Deferring
// Close right after a successful New covers every exit path.
func (w *Writer) Open() error {
	return w.sess.open(w.path, &w.header, w.cfg)
}

// WriteFrame writes a single frame. It is the batched path with a batch of
// one, so the same validation and repair policy applies.
func (w *Writer) WriteFrame(frame Frame) error {
	return w.WriteFrames([]Frame{frame})
}

// WriteFrames writes a sequence of frames in order, applying the repair
// policy against the last accepted frame (initialized to the first frame
// of the batch):
//
//   - A frame whose channel count differs from the previous accepted
//     frame is discarded and replaced wholesale by that frame.
//   - A channel containing NaN samples is replaced by the previous
//     accepted frame's data for the same channel; other channels of the
//     frame are unaffected.
//
// Both repairs are logged at warning level and never fail the batch. A
// per-channel sample count differing from the declared frequency is also
// only logged; the engine's exact-multiple contract is the final gate and
// fails the batch with a ShapeError. An empty batch is a no-op.
//
// Input frames are never mutated; repairs operate on copies.
func (w *Writer) WriteFrames(frames []Frame) error {
	if len(frames) == 0 {
		return nil
	}

	previous := frames[0]
	for idx, frame := range frames {
		if len(frame) != len(previous) {
			w.log.Warn("frame channel count differs from previous accepted frame, substituting previous frame",
				zap.Int("frame", idx),
				zap.Int("channels", len(frame)),
				zap.Int("want", len(previous)))
			frame = cloneFrame(previous)
		} else {
			frame = w.repairNaNChannels(frame, previous, idx)
		}

		for ch := range frame {
			if ch < len(w.header.Channels) && len(frame[ch]) != w.header.Channels[ch].SampleFrequency {
				w.log.Warn("channel sample count differs from declared sample frequency",
					zap.Int("frame", idx),
					zap.Int("channel", ch),
					zap.Int("samples", len(frame[ch])),
					zap.Int("frequency", w.header.Channels[ch].SampleFrequency))
			}
		}

		if err := w.sess.writeFrame(frame, w.header.Channels); err != nil {
			return err
		}
		previous = frame
	}

	return nil
}

// repairNaNChannels substitutes NaN-contaminated channels with the
// previous accepted frame's data, copying the frame on first repair so the
// caller's input is left intact.
func (w *Writer) repairNaNChannels(frame, previous Frame, idx int) Frame {
	repaired := frame
	copied := false
	for ch, samples := range frame {
		if !containsNaN(samples) {
			continue
		}
		w.log.Warn("channel contains NaN samples, substituting previous frame's channel data",
			zap.Int("frame", idx),
			zap.Int("channel", ch))
		if !copied {
			repaired = cloneFrame(frame)
			copied = true
		}
		repaired[ch] = previous[ch]
	}
	return repaired
}

// WriteAnnotation appends a timestamped text annotation to the recording.
// Each call is independent and immediately forwarded to the engine.
func (w *Writer) WriteAnnotation(a Annotation) error {
	return w.sess.writeAnnotation(a)
}

// SetBirthdate is not implemented by the codec engine wrapper.
func (w *Writer) SetBirthdate(time.Time) error {
	return &UnsupportedError{Op: "SetBirthdate"}
}

// SetStartDatetime is not implemented by the codec engine wrapper.
func (w *Writer) SetStartDatetime(time.Time) error {
	return &UnsupportedError{Op: "SetStartDatetime"}
}

// Finish flushes the recording and releases the engine handle. It is
// idempotent: the handle is closed at most once and subsequent calls are
// no-ops.
func (w *Writer) Finish() error {
	return w.sess.finish()
}

// Close is Finish under the name io.Closer expects, so a deferred Close
// guarantees the handle is released on every exit path.
func (w *Writer) Close() error {
	return w.Finish()
}
