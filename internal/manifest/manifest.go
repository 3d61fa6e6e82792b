/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package manifest parses YAML job manifests describing a transform:
// where the input lives, where the output goes, and what to change.
package manifest

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/skald/internal/media"
	"github.com/friendsincode/skald/internal/mux"
)

// Manifest is the on-disk description of a transform job.
type Manifest struct {
	// Input is the storage key or file path of the source container.
	Input string `yaml:"input"`
	// Output is the storage key or file path for the result.
	Output string `yaml:"output"`
	// ContainerMime selects the output container format. Empty accepts
	// any sample type.
	ContainerMime string `yaml:"container_mime"`

	AudioMime    string `yaml:"audio_mime"`
	VideoMime    string `yaml:"video_mime"`
	OutputHeight int    `yaml:"output_height"`
	Rotation     int    `yaml:"rotation"`
	Flatten      bool   `yaml:"flatten"`

	// AdBreaks describes ad groups to stitch into the content, in cue order.
	AdBreaks []AdBreak `yaml:"ad_breaks"`
}

// AdBreak is one group of ads cued at a content position.
type AdBreak struct {
	// TimeUs is the content position the group cues at. Ignored when
	// Postroll is set.
	TimeUs int64 `yaml:"time_us"`
	// Postroll cues the group at the very end of the content.
	Postroll bool `yaml:"postroll"`
	// Inputs is the storage key or file path of each ad's sample log.
	Inputs []string `yaml:"inputs"`
	// DurationsUs holds each ad's duration, parallel to Inputs.
	DurationsUs []int64 `yaml:"durations_us"`
	// ResumeOffsetUs shifts the content resume position past the cue, for
	// breaks whose ads replace a stretch of content.
	ResumeOffsetUs int64 `yaml:"resume_offset_us"`
	// ServerSide marks the group as spliced into the content stream.
	ServerSide bool `yaml:"server_side"`
}

// Parse reads a manifest from r and validates it.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseBytes parses a manifest from raw YAML.
func ParseBytes(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Validate checks the manifest for fields a job cannot run without.
func (m *Manifest) Validate() error {
	if m.Input == "" {
		return fmt.Errorf("manifest: input is required")
	}
	if m.Output == "" {
		return fmt.Errorf("manifest: output is required")
	}
	if m.OutputHeight < 0 {
		return fmt.Errorf("manifest: output_height must not be negative")
	}
	if m.Rotation%90 != 0 {
		return fmt.Errorf("manifest: rotation must be a multiple of 90 degrees")
	}
	if m.AudioMime != "" && !mux.IsSupportedSampleMime(m.ContainerMime, m.AudioMime) {
		return fmt.Errorf("manifest: audio_mime %s is not writable to container %s", m.AudioMime, m.ContainerMime)
	}
	if m.VideoMime != "" && !mux.IsSupportedSampleMime(m.ContainerMime, m.VideoMime) {
		return fmt.Errorf("manifest: video_mime %s is not writable to container %s", m.VideoMime, m.ContainerMime)
	}
	for i, b := range m.AdBreaks {
		if err := b.validate(); err != nil {
			return fmt.Errorf("manifest: ad break %d: %w", i, err)
		}
		if b.Postroll && i != len(m.AdBreaks)-1 {
			return fmt.Errorf("manifest: ad break %d: postroll must be the last break", i)
		}
		if i > 0 && !b.Postroll && !m.AdBreaks[i-1].Postroll && b.TimeUs <= m.AdBreaks[i-1].TimeUs {
			return fmt.Errorf("manifest: ad break %d: time_us must be after the previous break", i)
		}
	}
	return nil
}

func (b AdBreak) validate() error {
	if len(b.Inputs) == 0 {
		return fmt.Errorf("inputs is required")
	}
	if len(b.DurationsUs) != len(b.Inputs) {
		return fmt.Errorf("durations_us must have one entry per input")
	}
	for _, d := range b.DurationsUs {
		if d <= 0 {
			return fmt.Errorf("durations_us entries must be positive")
		}
	}
	if !b.Postroll && b.TimeUs < 0 {
		return fmt.Errorf("time_us must not be negative")
	}
	if b.ResumeOffsetUs < 0 {
		return fmt.Errorf("resume_offset_us must not be negative")
	}
	if b.Postroll && b.ServerSide {
		return fmt.Errorf("a postroll break cannot be server side inserted")
	}
	return nil
}

// Request converts the manifest into a transform request.
func (m *Manifest) Request() media.TransformRequest {
	return media.TransformRequest{
		AudioMime:            m.AudioMime,
		VideoMime:            m.VideoMime,
		OutputHeight:         m.OutputHeight,
		RotationDeg:          m.Rotation,
		FlattenForSlowMotion: m.Flatten,
	}
}

// Encode writes the manifest as YAML.
func (m *Manifest) Encode() ([]byte, error) {
	return yaml.Marshal(m)
}
