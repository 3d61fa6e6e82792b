/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package container implements the sample-log interchange format: a JSON
// track header followed by length-prefixed, timestamped sample frames. It is
// the default on-disk form for engine input and output, so jobs run end to
// end without platform containers.
package container

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/friendsincode/skald/internal/media"
)

var magic = []byte("SKLDSL1\n")

// maxSampleSize guards against corrupt length prefixes.
const maxSampleSize = 64 << 20

const flagKeyFrame = 0x01

// ErrBadMagic reports input that is not a sample log.
var ErrBadMagic = errors.New("container: bad magic")

type header struct {
	Tracks []media.Format `json:"tracks"`
}

// Sample is one frame read from a sample log.
type Sample struct {
	TrackIndex int
	TimeUs     int64
	KeyFrame   bool
	Data       []byte
}

// Writer writes a sample log. WriteHeader must be called once before any
// samples.
type Writer struct {
	w             *bufio.Writer
	headerWritten bool
	trackCount    int
}

// NewWriter creates a writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteHeader writes the magic and the track table.
func (w *Writer) WriteHeader(tracks []media.Format) error {
	if w.headerWritten {
		return errors.New("container: header already written")
	}
	payload, err := json.Marshal(header{Tracks: tracks})
	if err != nil {
		return fmt.Errorf("container: encode header: %w", err)
	}
	if _, err := w.w.Write(magic); err != nil {
		return fmt.Errorf("container: write magic: %w", err)
	}
	if err := binary.Write(w.w, binary.BigEndian, uint32(len(payload))); err != nil {
		return fmt.Errorf("container: write header length: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("container: write header: %w", err)
	}
	w.headerWritten = true
	w.trackCount = len(tracks)
	return nil
}

// WriteSample appends one frame.
func (w *Writer) WriteSample(trackIndex int, data []byte, keyFrame bool, timeUs int64) error {
	if !w.headerWritten {
		return errors.New("container: sample before header")
	}
	if trackIndex < 0 || trackIndex >= w.trackCount {
		return fmt.Errorf("container: track index %d out of range", trackIndex)
	}
	var flags byte
	if keyFrame {
		flags |= flagKeyFrame
	}
	if err := w.w.WriteByte(byte(trackIndex)); err != nil {
		return fmt.Errorf("container: write frame: %w", err)
	}
	if err := w.w.WriteByte(flags); err != nil {
		return fmt.Errorf("container: write frame: %w", err)
	}
	if err := binary.Write(w.w, binary.BigEndian, timeUs); err != nil {
		return fmt.Errorf("container: write frame: %w", err)
	}
	if err := binary.Write(w.w, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("container: write frame: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("container: write frame: %w", err)
	}
	return nil
}

// Flush flushes buffered frames to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Reader reads a sample log.
type Reader struct {
	r      *bufio.Reader
	tracks []media.Format
}

// NewReader reads the header from r and returns a frame reader.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	got := make([]byte, len(magic))
	if _, err := io.ReadFull(br, got); err != nil {
		return nil, fmt.Errorf("container: read magic: %w", err)
	}
	for i := range magic {
		if got[i] != magic[i] {
			return nil, ErrBadMagic
		}
	}
	var headerLen uint32
	if err := binary.Read(br, binary.BigEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("container: read header length: %w", err)
	}
	if headerLen > maxSampleSize {
		return nil, fmt.Errorf("container: header of %d bytes too large", headerLen)
	}
	payload := make([]byte, headerLen)
	if _, err := io.ReadFull(br, payload); err != nil {
		return nil, fmt.Errorf("container: read header: %w", err)
	}
	var h header
	if err := json.Unmarshal(payload, &h); err != nil {
		return nil, fmt.Errorf("container: decode header: %w", err)
	}
	return &Reader{r: br, tracks: h.Tracks}, nil
}

// Tracks returns the track formats declared in the header.
func (r *Reader) Tracks() []media.Format {
	return r.tracks
}

// Next returns the next frame, or io.EOF at the end of the log.
func (r *Reader) Next() (Sample, error) {
	trackByte, err := r.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Sample{}, io.EOF
		}
		return Sample{}, fmt.Errorf("container: read frame: %w", err)
	}
	flags, err := r.r.ReadByte()
	if err != nil {
		return Sample{}, fmt.Errorf("container: read frame: %w", err)
	}
	var timeUs int64
	if err := binary.Read(r.r, binary.BigEndian, &timeUs); err != nil {
		return Sample{}, fmt.Errorf("container: read frame: %w", err)
	}
	var size uint32
	if err := binary.Read(r.r, binary.BigEndian, &size); err != nil {
		return Sample{}, fmt.Errorf("container: read frame: %w", err)
	}
	if size > maxSampleSize {
		return Sample{}, fmt.Errorf("container: sample of %d bytes too large", size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return Sample{}, fmt.Errorf("container: read frame payload: %w", err)
	}
	if int(trackByte) >= len(r.tracks) {
		return Sample{}, fmt.Errorf("container: frame for unknown track %d", trackByte)
	}
	return Sample{
		TrackIndex: int(trackByte),
		TimeUs:     timeUs,
		KeyFrame:   flags&flagKeyFrame != 0,
		Data:       data,
	}, nil
}
