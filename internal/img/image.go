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
	"errors"
	"fmt"
)

// A planar floating point image. Channels are stored as contiguous planes
// of Width*Height samples each, rows first. Intensities are nominally in [0,1].
type Image struct {
	ID          int       // Sequential ID number, for log output
	FileName    string    // Original file name, if any, for log output
	Width       int       // Width in pixels
	Height      int       // Height in pixels
	NumChannels int       // Number of planes, 1 for grayscale or 3 for RGB
	Data        []float64 // The image data, NumChannels*Width*Height samples
}

var errShape = errors.New("image dimensions do not match")

// Creates an image of given dimensions with zeroed data
func NewImage(width, height, numChannels int) *Image {
	return &Image{
		Width:       width,
		Height:      height,
		NumChannels: numChannels,
		Data:        make([]float64, width*height*numChannels),
	}
}

// Creates an image with the dimensions, ID and file name of the given image.
// New data array will be allocated, the pixels are not copied
func NewImageFromImage(src *Image) *Image {
	dst := NewImage(src.Width, src.Height, src.NumChannels)
	dst.ID, dst.FileName = src.ID, src.FileName
	return dst
}

// Returns the number of pixels per channel
func (f *Image) Pixels() int { return f.Width * f.Height }

// Returns the plane of channel c. Shares the underlying array
func (f *Image) Plane(c int) []float64 {
	n := f.Pixels()
	return f.Data[c*n : (c+1)*n]
}

// Returns true if both images have identical width, height and channel count
func (f *Image) SameShape(g *Image) bool {
	return f.Width == g.Width && f.Height == g.Height && f.NumChannels == g.NumChannels
}

// Copies the pixels of src into f. Dimensions must match
func (f *Image) CopyFrom(src *Image) error {
	if !f.SameShape(src) {
		return fmt.Errorf("%w: %s vs %s", errShape, f.DimensionsToString(), src.DimensionsToString())
	}
	copy(f.Data, src.Data)
	return nil
}

func (f *Image) DimensionsToString() string {
	if f.NumChannels == 1 {
		return fmt.Sprintf("%dx%d", f.Width, f.Height)
	}
	return fmt.Sprintf("%dx%dx%d", f.Width, f.Height, f.NumChannels)
}

// Tests whether all pixels of a planar RGB image have identical red, green and blue values.
// Comparison is exact. Single channel images are trivially grayscale
func (f *Image) IsGrayscale() bool {
	if f.NumChannels == 1 {
		return true
	}
	n := f.Pixels()
	red, green, blue := f.Data[:n], f.Data[n:2*n], f.Data[2*n:3*n]
	for i, r := range red {
		if r != green[i] || r != blue[i] {
			return false
		}
	}
	return true
}

// Reduces the image to its first plane. Only meaningful if IsGrayscale() holds
func (f *Image) ToMono() {
	if f.NumChannels == 1 {
		return
	}
	f.Data = f.Data[:f.Pixels():f.Pixels()]
	f.NumChannels = 1
}

// Expands a single channel image to three identical planes
func (f *Image) ToRGB() {
	if f.NumChannels != 1 {
		return
	}
	n := f.Pixels()
	data := make([]float64, 3*n)
	for c := 0; c < 3; c++ {
		copy(data[c*n:(c+1)*n], f.Data)
	}
	f.Data, f.NumChannels = data, 3
}
