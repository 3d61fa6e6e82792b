/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mux

import (
	"errors"
	"fmt"
	"io"

	"github.com/friendsincode/skald/internal/container"
	"github.com/friendsincode/skald/internal/media"
)

// SampleLogMuxer writes the sample-log container. The header is written
// lazily on the first sample so tracks can be added as renderers configure.
type SampleLogMuxer struct {
	w        *container.Writer
	closer   io.Closer
	tracks   []media.Format
	started  bool
	released bool

	// ContainerMime restricts accepted sample MIME types to one of the
	// known container families. Empty accepts everything.
	containerMime string
}

// NewSampleLogMuxer creates a muxer writing to w. If w is an io.Closer it
// is closed on Release. containerMime may be empty for a format-agnostic
// log.
func NewSampleLogMuxer(w io.Writer, containerMime string) *SampleLogMuxer {
	m := &SampleLogMuxer{w: container.NewWriter(w), containerMime: containerMime}
	if c, ok := w.(io.Closer); ok {
		m.closer = c
	}
	return m
}

func (m *SampleLogMuxer) AddTrack(format media.Format) (int, error) {
	if m.started {
		return 0, errors.New("mux: track added after first sample")
	}
	if m.released {
		return 0, errors.New("mux: muxer released")
	}
	m.tracks = append(m.tracks, format)
	return len(m.tracks) - 1, nil
}

func (m *SampleLogMuxer) WriteSample(trackIndex int, data []byte, keyFrame bool, timeUs int64) error {
	if m.released {
		return errors.New("mux: muxer released")
	}
	if !m.started {
		if err := m.w.WriteHeader(m.tracks); err != nil {
			return fmt.Errorf("mux: start container: %w", err)
		}
		m.started = true
	}
	return m.w.WriteSample(trackIndex, data, keyFrame, timeUs)
}

func (m *SampleLogMuxer) SupportsSampleMime(sampleMime string) bool {
	return IsSupportedSampleMime(m.containerMime, sampleMime)
}

func (m *SampleLogMuxer) Release(forCancellation bool) error {
	if m.released {
		return nil
	}
	m.released = true
	err := m.w.Flush()
	if m.closer != nil {
		if cerr := m.closer.Close(); err == nil {
			err = cerr
		}
	}
	// A cancelled job may leave the container unfinished; that is not an
	// error the caller can act on.
	if forCancellation {
		return nil
	}
	return err
}
