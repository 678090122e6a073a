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

package denoise

import (
	"fmt"

	"github.com/mlnoga/tvdenoise/internal/fault"
)

// Number of full size float64 arrays alive during a run: input and output image,
// plus the solver's over-relaxed and previous iterate and two dual components
const workingSetArrays = 6

// Returns the working set of a denoising run in bytes
func WorkingSet(width, height, numChannels int) int64 {
	return int64(workingSetArrays) * int64(width) * int64(height) * int64(numChannels) * 8
}

// Checks that a run on an image of given dimensions fits into budgetMB megabytes.
// A non-positive budget disables the check
func CheckMemory(width, height, numChannels, budgetMB int) error {
	if budgetMB <= 0 {
		return nil
	}
	need := WorkingSet(width, height, numChannels)
	if need > int64(budgetMB)*1024*1024 {
		return fmt.Errorf("%w: %dx%dx%d image needs %d MB, budget is %d MB", fault.ErrAllocation,
			width, height, numChannels, (need+1024*1024-1)/(1024*1024), budgetMB)
	}
	return nil
}
