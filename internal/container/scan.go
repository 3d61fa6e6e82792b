/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package container

import (
	"errors"
	"io"
)

// ScanDurationUs reads a sample log to its end and returns the content
// duration, taken as one microsecond past the latest sample timestamp.
// An empty log has duration zero.
func ScanDurationUs(r io.Reader) (int64, error) {
	cr, err := NewReader(r)
	if err != nil {
		return 0, err
	}
	lastUs := int64(-1)
	for {
		s, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		if s.TimeUs > lastUs {
			lastUs = s.TimeUs
		}
	}
	return lastUs + 1, nil
}
