/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"fmt"
	"time"
)

// ErrorCode classifies terminal transform failures into numeric bands:
// 1xxx miscellaneous, 2xxx input I/O, 3xxx decoding, 4xxx encoding,
// 5xxx frame/audio processing, 6xxx muxing.
type ErrorCode int

const (
	ErrorCodeUnspecified        ErrorCode = 1000
	ErrorCodeFailedRuntimeCheck ErrorCode = 1001

	ErrorCodeIOUnspecified              ErrorCode = 2000
	ErrorCodeIONetworkConnectionFailed  ErrorCode = 2001
	ErrorCodeIONetworkConnectionTimeout ErrorCode = 2002
	ErrorCodeIOBadHTTPStatus            ErrorCode = 2003
	ErrorCodeIOFileNotFound             ErrorCode = 2004
	ErrorCodeIONoPermission             ErrorCode = 2005
	ErrorCodeIOCleartextNotPermitted    ErrorCode = 2006
	ErrorCodeIOReadPositionOutOfRange   ErrorCode = 2007
	ErrorCodeIOUnknownHost              ErrorCode = 2008

	ErrorCodeDecoderInitFailed         ErrorCode = 3001
	ErrorCodeDecodingFailed            ErrorCode = 3002
	ErrorCodeDecodingFormatUnsupported ErrorCode = 3003

	ErrorCodeEncoderInitFailed         ErrorCode = 4001
	ErrorCodeEncodingFailed            ErrorCode = 4002
	ErrorCodeEncodingFormatUnsupported ErrorCode = 4003

	ErrorCodeGLInitFailed       ErrorCode = 5001
	ErrorCodeGLProcessingFailed ErrorCode = 5002

	ErrorCodeMuxerSampleMimeUnsupported ErrorCode = 6001
)

var errorCodeNames = map[ErrorCode]string{
	ErrorCodeUnspecified:                "unspecified",
	ErrorCodeFailedRuntimeCheck:         "failed_runtime_check",
	ErrorCodeIOUnspecified:              "io_unspecified",
	ErrorCodeIONetworkConnectionFailed:  "io_network_connection_failed",
	ErrorCodeIONetworkConnectionTimeout: "io_network_connection_timeout",
	ErrorCodeIOBadHTTPStatus:            "io_bad_http_status",
	ErrorCodeIOFileNotFound:             "io_file_not_found",
	ErrorCodeIONoPermission:             "io_no_permission",
	ErrorCodeIOCleartextNotPermitted:    "io_cleartext_not_permitted",
	ErrorCodeIOReadPositionOutOfRange:   "io_read_position_out_of_range",
	ErrorCodeIOUnknownHost:              "io_unknown_host",
	ErrorCodeDecoderInitFailed:          "decoder_init_failed",
	ErrorCodeDecodingFailed:             "decoding_failed",
	ErrorCodeDecodingFormatUnsupported:  "decoding_format_unsupported",
	ErrorCodeEncoderInitFailed:          "encoder_init_failed",
	ErrorCodeEncodingFailed:             "encoding_failed",
	ErrorCodeEncodingFormatUnsupported:  "encoding_format_unsupported",
	ErrorCodeGLInitFailed:               "gl_init_failed",
	ErrorCodeGLProcessingFailed:         "gl_processing_failed",
	ErrorCodeMuxerSampleMimeUnsupported: "muxer_sample_mime_unsupported",
}

// Name returns the stable lowercase name for the code, or "invalid".
func (c ErrorCode) Name() string {
	if n, ok := errorCodeNames[c]; ok {
		return n
	}
	return "invalid"
}

// Error is the single terminal error type a transform job surfaces. It wraps
// the originating cause and records when the failure was created.
type Error struct {
	Code        ErrorCode
	Component   string
	TimestampMs int64
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: transform failed: %s (%d)", e.Component, e.Code.Name(), e.Code)
	}
	return fmt.Sprintf("%s: transform failed: %s (%d): %v", e.Component, e.Code.Name(), e.Code, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a transform error for the given component and cause.
func NewError(code ErrorCode, component string, cause error) *Error {
	return &Error{
		Code:        code,
		Component:   component,
		TimestampMs: time.Now().UnixMilli(),
		Cause:       cause,
	}
}

// ErrorForCodec maps a codec failure to the right band depending on whether
// the failure happened on the decode or encode side, at init or at runtime.
func ErrorForCodec(cause error, isDecoder, isInit bool) *Error {
	component := "encoder"
	code := ErrorCodeEncodingFailed
	if isInit {
		code = ErrorCodeEncoderInitFailed
	}
	if isDecoder {
		component = "decoder"
		code = ErrorCodeDecodingFailed
		if isInit {
			code = ErrorCodeDecoderInitFailed
		}
	}
	return NewError(code, component, cause)
}

// ErrorForMuxer wraps a muxer failure.
func ErrorForMuxer(cause error, code ErrorCode) *Error {
	return NewError(code, "muxer", cause)
}

// ErrorForUnexpected wraps a failure that no other band covers.
func ErrorForUnexpected(cause error) *Error {
	return NewError(ErrorCodeFailedRuntimeCheck, "engine", cause)
}
