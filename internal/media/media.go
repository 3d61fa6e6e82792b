/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import "math"

// Time sentinels on the shared microsecond axis. TimeUnset marks an unknown
// or unset time, TimeEndOfSource marks the end of the source as a position.
const (
	TimeUnset       int64 = math.MinInt64 + 1
	TimeEndOfSource int64 = math.MinInt64
)

// IndexUnset marks an unset index (ad group, ad-in-group, length).
const IndexUnset = -1

// MicrosPerSecond converts seconds to the microsecond axis.
const MicrosPerSecond int64 = 1_000_000

// TrackType identifies the kind of samples a track carries.
type TrackType int

const (
	TrackTypeUnknown TrackType = iota
	TrackTypeAudio
	TrackTypeVideo
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeAudio:
		return "audio"
	case TrackTypeVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Container and sample MIME types understood by the built-in muxer tables.
const (
	ContainerMP4  = "video/mp4"
	ContainerWebM = "video/webm"

	MimeVideoH263 = "video/3gpp"
	MimeVideoH264 = "video/avc"
	MimeVideoH265 = "video/hevc"
	MimeVideoMP4V = "video/mp4v-es"
	MimeVideoVP8  = "video/x-vnd.on2.vp8"
	MimeVideoVP9  = "video/x-vnd.on2.vp9"

	MimeAudioAAC    = "audio/mp4a-latm"
	MimeAudioAMRNB  = "audio/3gpp"
	MimeAudioAMRWB  = "audio/amr-wb"
	MimeAudioVorbis = "audio/vorbis"
	MimeAudioOpus   = "audio/opus"
	MimeAudioRawPCM = "audio/raw"
)

// TrackTypeForMime derives the track type from a sample MIME type prefix.
func TrackTypeForMime(mime string) TrackType {
	if len(mime) >= 6 && mime[:6] == "audio/" {
		return TrackTypeAudio
	}
	if len(mime) >= 6 && mime[:6] == "video/" {
		return TrackTypeVideo
	}
	return TrackTypeUnknown
}

// Format describes the samples of one track. Zero values mean unset.
type Format struct {
	TrackType      TrackType
	SampleMime     string
	Width          int
	Height         int
	RotationDeg    int
	SampleRate     int
	ChannelCount   int
	AverageBitrate int

	// SlowMotion marks content carrying slow-motion recording metadata,
	// which the video renderer may flatten.
	SlowMotion bool
}

// IsZero reports whether the format carries no information.
func (f Format) IsZero() bool {
	return f == Format{}
}
