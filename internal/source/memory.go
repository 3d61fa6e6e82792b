/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import "github.com/friendsincode/skald/internal/media"

// MemoryTrack is one track of a MemorySource.
type MemoryTrack struct {
	Format  media.Format
	Samples []media.Buffer

	// FormatDelayReads makes Format report unknown for that many calls, so
	// callers exercise their configure-retry path.
	FormatDelayReads int
}

// MemorySource serves samples from memory. It is the in-process input for
// tests and for jobs assembled programmatically.
type MemorySource struct {
	streams map[media.TrackType]*memoryStream
	order   []media.TrackType
}

type memoryStream struct {
	track   MemoryTrack
	pos     int
	eosSent bool
}

// NewMemorySource creates a source over the given tracks.
func NewMemorySource(tracks ...MemoryTrack) *MemorySource {
	s := &MemorySource{streams: make(map[media.TrackType]*memoryStream, len(tracks))}
	for _, tr := range tracks {
		s.streams[tr.Format.TrackType] = &memoryStream{track: tr}
		s.order = append(s.order, tr.Format.TrackType)
	}
	return s
}

func (s *MemorySource) TrackTypes() []media.TrackType {
	out := make([]media.TrackType, len(s.order))
	copy(out, s.order)
	return out
}

func (s *MemorySource) SelectTrack(trackType media.TrackType) (Stream, bool) {
	st, ok := s.streams[trackType]
	return st, ok
}

func (s *MemorySource) Release() {}

func (st *memoryStream) Format() (media.Format, bool) {
	if st.track.FormatDelayReads > 0 {
		st.track.FormatDelayReads--
		return media.Format{}, false
	}
	return st.track.Format, true
}

func (st *memoryStream) Read(buf *media.Buffer) (bool, error) {
	if st.pos < len(st.track.Samples) {
		s := st.track.Samples[st.pos]
		st.pos++
		buf.Set(s.Data, s.TimeUs, s.KeyFrame)
		return true, nil
	}
	if st.eosSent {
		return false, nil
	}
	st.eosSent = true
	buf.SetEndOfStream()
	return true, nil
}
