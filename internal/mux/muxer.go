/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mux writes transformed samples into output containers. The
// wrapper in this package gates muxer start until every declared track is
// added and enforces per-track time ordering; concrete muxers only have to
// write frames.
package mux

import "github.com/friendsincode/skald/internal/media"

// Muxer writes samples of one or more tracks into a container. Muxers start
// lazily on the first sample; Release with forCancellation set must swallow
// errors caused by stopping an unfinished container.
type Muxer interface {
	// AddTrack registers a track and returns its index. All tracks must be
	// added before the first sample.
	AddTrack(format media.Format) (int, error)

	// WriteSample writes one frame to a track.
	WriteSample(trackIndex int, data []byte, keyFrame bool, timeUs int64) error

	// SupportsSampleMime reports whether the container accepts the sample
	// MIME type.
	SupportsSampleMime(sampleMime string) bool

	// Release finishes the container and frees resources.
	Release(forCancellation bool) error
}

var sampleMimesByContainer = map[string][]string{
	media.ContainerMP4: {
		media.MimeVideoH263,
		media.MimeVideoH264,
		media.MimeVideoH265,
		media.MimeVideoMP4V,
		media.MimeAudioAAC,
		media.MimeAudioAMRNB,
		media.MimeAudioAMRWB,
	},
	media.ContainerWebM: {
		media.MimeVideoVP8,
		media.MimeVideoVP9,
		media.MimeAudioVorbis,
		media.MimeAudioOpus,
	},
}

// SupportedSampleMimes returns the sample MIME types a container accepts.
func SupportedSampleMimes(containerMime string) []string {
	return sampleMimesByContainer[containerMime]
}

// IsSupportedSampleMime reports whether a container accepts a sample MIME
// type. Unknown containers accept everything; the sample-log container is
// format-agnostic.
func IsSupportedSampleMime(containerMime, sampleMime string) bool {
	mimes, known := sampleMimesByContainer[containerMime]
	if !known {
		return true
	}
	for _, m := range mimes {
		if m == sampleMime {
			return true
		}
	}
	return false
}
