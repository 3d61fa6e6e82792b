/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package timeline

import (
	"fmt"

	"github.com/friendsincode/skald/internal/media"
)

// PeriodID identifies one playable span of a period: either a content span
// (with the ad group that cuts it short, if any) or a single ad. The window
// sequence number distinguishes repeated playouts of the same period.
// PeriodID is comparable; equality is structural.
type PeriodID struct {
	PeriodUID        string
	WindowSequence   int64
	AdGroupIndex     int
	AdIndexInAdGroup int
	NextAdGroupIndex int
}

// ContentID builds an id for a content span. nextAdGroupIndex is the ad
// group the span runs into, or media.IndexUnset when it runs to period end.
func ContentID(periodUID string, windowSequence int64, nextAdGroupIndex int) PeriodID {
	return PeriodID{
		PeriodUID:        periodUID,
		WindowSequence:   windowSequence,
		AdGroupIndex:     media.IndexUnset,
		AdIndexInAdGroup: media.IndexUnset,
		NextAdGroupIndex: nextAdGroupIndex,
	}
}

// AdID builds an id for a single ad within an ad group.
func AdID(periodUID string, windowSequence int64, adGroupIndex, adIndexInAdGroup int) PeriodID {
	return PeriodID{
		PeriodUID:        periodUID,
		WindowSequence:   windowSequence,
		AdGroupIndex:     adGroupIndex,
		AdIndexInAdGroup: adIndexInAdGroup,
		NextAdGroupIndex: media.IndexUnset,
	}
}

// IsAd reports whether the id names an ad rather than a content span.
func (id PeriodID) IsAd() bool { return id.AdGroupIndex != media.IndexUnset }

func (id PeriodID) String() string {
	if id.IsAd() {
		return fmt.Sprintf("%s/w%d/ad[%d][%d]", id.PeriodUID, id.WindowSequence, id.AdGroupIndex, id.AdIndexInAdGroup)
	}
	return fmt.Sprintf("%s/w%d/content(next=%d)", id.PeriodUID, id.WindowSequence, id.NextAdGroupIndex)
}
