// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package edfwrite writes EDF/BDF biosignal recordings: multi-channel
// time-series files with a structured header, fixed-duration data records
// and an embedded annotation channel.
//
// A Writer is constructed from an output path and a Header describing the
// patient and the ordered channel list, then driven through the mandatory
// lifecycle: Open, any number of WriteFrame/WriteFrames and WriteAnnotation
// calls, and Finish.
//
//	hdr := edfwrite.Header{
//	    Patient: edfwrite.PatientInfo{Name: "Demo", Code: "0001"},
//	    Channels: []edfwrite.Channel{{
//	        Label:             "EEG Fpz-Cz",
//	        Transducer:        "AgAgCl cup electrodes",
//	        DigitalMin:        -32768,
//	        DigitalMax:        32767,
//	        PhysicalMin:       -2000,
//	        PhysicalMax:       2000,
//	        PhysicalDimension: "uV",
//	        SampleFrequency:   256,
//	    }},
//	}
//
//	w := edfwrite.New("recording.edf", hdr)
//	if err := w.Open(); err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	if err := w.WriteFrames(frames); err != nil {
//	    return err
//	}
//	if err := w.WriteAnnotation(edfwrite.Annotation{Description: "Start of recording"}); err != nil {
//	    return err
//	}
//	return w.Finish()
//
// The file extension selects the container: ".bdf" produces a 24-bit BDF+
// file, anything else a 16-bit EDF+ file.
//
// Frames pushed through WriteFrames are validated and, where possible,
// repaired rather than rejected: a frame whose channel count disagrees with
// the previous accepted frame is replaced by that frame wholesale, and a
// channel contaminated with NaN samples is replaced by the previous
// accepted frame's data for the same channel. Both repairs are reported at
// warning level on the logger supplied via WithLogger and never fail the
// write.
//
// The byte-level container layout is owned by an Engine. The built-in
// engine (see internal/codec) is used unless WithEngine supplies another,
// which is also how tests stub out the disk entirely.
package edfwrite
