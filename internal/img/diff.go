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

package img

import (
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Colors for negative and positive differences, blended from white in CIE L*a*b*
var (
	diffWhite    = colorful.Color{R: 1, G: 1, B: 1}
	diffNegative = colorful.Color{R: 0.23, G: 0.30, B: 0.75}
	diffPositive = colorful.Color{R: 0.71, G: 0.02, B: 0.15}
)

// Visualizes the signed difference a-b as an RGB image. Differences are averaged
// over channels and multiplied by scale. Zero maps to white, -1 to blue and +1 to red.
// Dimensions must match
func NewDiffImage(a, b *Image, scale float64) (*Image, error) {
	if !a.SameShape(b) {
		return nil, errShape
	}
	d := NewImage(a.Width, a.Height, 3)
	d.ID, d.FileName = a.ID, a.FileName
	n := a.Pixels()
	red, green, blue := d.Data[:n], d.Data[n:2*n], d.Data[2*n:]
	norm := scale / float64(a.NumChannels)
	for i := 0; i < n; i++ {
		diff := 0.0
		for c := 0; c < a.NumChannels; c++ {
			diff += a.Data[c*n+i] - b.Data[c*n+i]
		}
		diff *= norm
		if diff > 1 {
			diff = 1
		} else if diff < -1 {
			diff = -1
		}

		var col colorful.Color
		if diff >= 0 {
			col = diffWhite.BlendLab(diffPositive, diff)
		} else {
			col = diffWhite.BlendLab(diffNegative, -diff)
		}
		col = col.Clamped()
		red[i], green[i], blue[i] = col.R, col.G, col.B
	}
	return d, nil
}
