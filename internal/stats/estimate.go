// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package stats

import (
	"math"

	"github.com/mlnoga/tvdenoise/internal/qsort"
)

const (
	estimateBins  = 128 // histogram bins for the noise fit
	estimateRange = 6   // histogram covers +/- this many robust standard deviations
)

// Estimates the standard deviation of additive white noise in a single image plane.
// Differences of horizontally and vertically adjacent pixels are divided by sqrt(2),
// which preserves the noise level while flat areas cancel out. A normal distribution
// fitted to their histogram ignores the heavy tails caused by edges
func EstimateNoise(plane []float64, width, height int) (sigma float64, err error) {
	if width < 2 || height < 2 {
		return 0, nil
	}
	diffs := make([]float64, 0, 2*width*height)
	for y := 0; y < height; y++ {
		row := plane[y*width : (y+1)*width]
		for x := 0; x+1 < width; x++ {
			diffs = append(diffs, (row[x+1]-row[x])/math.Sqrt2)
		}
		if y+1 < height {
			next := plane[(y+1)*width : (y+2)*width]
			for x := 0; x < width; x++ {
				diffs = append(diffs, (next[x]-row[x])/math.Sqrt2)
			}
		}
	}

	// Median absolute deviation for a robust first guess
	abs := make([]float64, len(diffs))
	for i, d := range diffs {
		abs[i] = math.Abs(d)
	}
	mad := 1.4826 * qsort.QSelectMedianFloat64(abs)
	if mad == 0 {
		return 0, nil
	}

	bins := make([]int32, estimateBins)
	Histogram(diffs, -estimateRange*mad, estimateRange*mad, bins)
	_, sigma, err = GetModeStdDevFromHistogram(bins, -estimateRange*mad, estimateRange*mad, mad)
	if err != nil {
		return mad, err
	}
	return sigma, nil
}
