/*
Copyright © 2026 the Downscale authors.
This file is part of Downscale.

Downscale is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Downscale is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Downscale.  If not, see <http://www.gnu.org/licenses/>.
*/

package downscale

import (
	"fmt"
	"time"
)

// TimeAxis is an ordered sequence of UTC timestamps with no duplicates.
// Two fields covering the same logical period must share an equal TimeAxis
// for any operation that compares them.
type TimeAxis struct {
	times []time.Time
}

// NewTimeAxis creates a time axis from the given timestamps, which must be
// strictly increasing. Timestamps are converted to UTC. An empty axis is
// valid.
func NewTimeAxis(times []time.Time) (*TimeAxis, error) {
	a := &TimeAxis{times: make([]time.Time, len(times))}
	for i, t := range times {
		a.times[i] = t.UTC()
		if i > 0 && !a.times[i].After(a.times[i-1]) {
			return nil, fmt.Errorf("downscale: time axis must be strictly increasing; %v follows %v",
				a.times[i].Format(time.RFC3339), a.times[i-1].Format(time.RFC3339))
		}
	}
	return a, nil
}

// Len returns the number of timestamps in the axis.
func (a *TimeAxis) Len() int { return len(a.times) }

// Time returns the timestamp at index i.
func (a *TimeAxis) Time(i int) time.Time { return a.times[i] }

// Times returns a copy of the timestamps in the axis.
func (a *TimeAxis) Times() []time.Time {
	return append([]time.Time(nil), a.times...)
}

// Equal reports whether a and o hold exactly the same timestamps.
func (a *TimeAxis) Equal(o *TimeAxis) bool {
	if a == o {
		return true
	}
	if o == nil || len(a.times) != len(o.times) {
		return false
	}
	for i, t := range a.times {
		if !t.Equal(o.times[i]) {
			return false
		}
	}
	return true
}

// Freq returns the axis cadence if it is uniform, and reports whether a
// uniform cadence could be established. Axes with fewer than two
// timestamps have no cadence.
func (a *TimeAxis) Freq() (time.Duration, bool) {
	if len(a.times) < 2 {
		return 0, false
	}
	step := a.times[1].Sub(a.times[0])
	for i := 2; i < len(a.times); i++ {
		if a.times[i].Sub(a.times[i-1]) != step {
			return 0, false
		}
	}
	return step, true
}
