/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

// TransformRequest describes the output a transform job should produce.
// Zero values mean "keep as input". Requests are immutable; the With*
// methods return modified copies. Comparable with ==.
type TransformRequest struct {
	// AudioMime is the target audio sample MIME type, empty to keep the
	// input type.
	AudioMime string
	// VideoMime is the target video sample MIME type, empty to keep the
	// input type.
	VideoMime string
	// OutputHeight is the target video height in pixels, 0 to keep the
	// input height.
	OutputHeight int
	// RotationDeg rotates the video by the given degrees, 0 for none.
	RotationDeg int
	// FlattenForSlowMotion rewrites slow-motion content to play at normal
	// speed, dropping samples as needed.
	FlattenForSlowMotion bool
}

// WithAudioMime returns a copy targeting the given audio sample MIME type.
func (r TransformRequest) WithAudioMime(mime string) TransformRequest {
	r.AudioMime = mime
	return r
}

// WithVideoMime returns a copy targeting the given video sample MIME type.
func (r TransformRequest) WithVideoMime(mime string) TransformRequest {
	r.VideoMime = mime
	return r
}

// WithOutputHeight returns a copy targeting the given video height.
func (r TransformRequest) WithOutputHeight(height int) TransformRequest {
	r.OutputHeight = height
	return r
}

// WithRotationDeg returns a copy rotating the video by the given degrees.
func (r TransformRequest) WithRotationDeg(deg int) TransformRequest {
	r.RotationDeg = deg
	return r
}

// WithFlattenForSlowMotion returns a copy with slow-motion flattening set.
func (r TransformRequest) WithFlattenForSlowMotion(flatten bool) TransformRequest {
	r.FlattenForSlowMotion = flatten
	return r
}
