/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/friendsincode/skald/internal/container"
	"github.com/friendsincode/skald/internal/media"
)

// FileSource reads a sample log and demuxes it into per-track streams.
// Frames for a track that is read behind the others are buffered until
// their stream catches up.
type FileSource struct {
	r       *container.Reader
	closer  io.Closer
	streams map[media.TrackType]*fileStream
	order   []media.TrackType
	eof     bool
}

type fileStream struct {
	src        *FileSource
	trackIndex int
	format     media.Format
	pending    []container.Sample
	eosSent    bool
}

// OpenFile opens the sample log at path.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		code := media.ErrorCodeIOUnspecified
		if errors.Is(err, os.ErrNotExist) {
			code = media.ErrorCodeIOFileNotFound
		} else if errors.Is(err, os.ErrPermission) {
			code = media.ErrorCodeIONoPermission
		}
		return nil, media.NewError(code, "source", err)
	}
	s, err := NewFileSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewFileSource reads the sample-log header from r and prepares per-track
// streams.
func NewFileSource(r io.Reader) (*FileSource, error) {
	cr, err := container.NewReader(r)
	if err != nil {
		return nil, media.NewError(media.ErrorCodeIOUnspecified, "source", err)
	}
	s := &FileSource{r: cr, streams: make(map[media.TrackType]*fileStream)}
	for i, f := range cr.Tracks() {
		if _, dup := s.streams[f.TrackType]; dup {
			return nil, media.NewError(media.ErrorCodeIOUnspecified, "source",
				fmt.Errorf("duplicate %s track in header", f.TrackType))
		}
		s.streams[f.TrackType] = &fileStream{src: s, trackIndex: i, format: f}
		s.order = append(s.order, f.TrackType)
	}
	return s, nil
}

func (s *FileSource) TrackTypes() []media.TrackType {
	out := make([]media.TrackType, len(s.order))
	copy(out, s.order)
	return out
}

func (s *FileSource) SelectTrack(trackType media.TrackType) (Stream, bool) {
	st, ok := s.streams[trackType]
	return st, ok
}

func (s *FileSource) Release() {
	if s.closer != nil {
		s.closer.Close()
		s.closer = nil
	}
}

// pull reads frames until one lands on the wanted track, queuing frames of
// other tracks on their streams. Returns false at end of input.
func (s *FileSource) pull(want *fileStream) (container.Sample, bool, error) {
	for !s.eof {
		sample, err := s.r.Next()
		if errors.Is(err, io.EOF) {
			s.eof = true
			break
		}
		if err != nil {
			return container.Sample{}, false, media.NewError(media.ErrorCodeIOUnspecified, "source", err)
		}
		owner := s.streamForIndex(sample.TrackIndex)
		if owner == nil {
			continue
		}
		if owner == want {
			return sample, true, nil
		}
		owner.pending = append(owner.pending, sample)
	}
	return container.Sample{}, false, nil
}

func (s *FileSource) streamForIndex(trackIndex int) *fileStream {
	for _, st := range s.streams {
		if st.trackIndex == trackIndex {
			return st
		}
	}
	return nil
}

func (st *fileStream) Format() (media.Format, bool) {
	return st.format, true
}

func (st *fileStream) Read(buf *media.Buffer) (bool, error) {
	if len(st.pending) > 0 {
		sample := st.pending[0]
		copy(st.pending, st.pending[1:])
		st.pending = st.pending[:len(st.pending)-1]
		buf.Set(sample.Data, sample.TimeUs, sample.KeyFrame)
		return true, nil
	}
	sample, ok, err := st.src.pull(st)
	if err != nil {
		return false, err
	}
	if ok {
		buf.Set(sample.Data, sample.TimeUs, sample.KeyFrame)
		return true, nil
	}
	if st.eosSent {
		return false, nil
	}
	st.eosSent = true
	buf.SetEndOfStream()
	return true, nil
}
