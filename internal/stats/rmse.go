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

	"gonum.org/v1/gonum/floats"
)

// Computes the root mean square error between two equally sized sample arrays,
// taken over all samples of all channels. Callers ensure matching dimensions
func ComputeRmse(ref, cand []float64) float64 {
	if len(ref) == 0 {
		return 0
	}
	return floats.Distance(ref, cand, 2) / math.Sqrt(float64(len(ref)))
}

// Peak signal to noise ratio in dB for the given rmse and peak intensity
func PSNR(rmse, peak float64) float64 {
	return 20 * math.Log10(peak/rmse)
}
