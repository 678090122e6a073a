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
	"bufio"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
)

// Reads an image file into a new planar RGB image with intensities in [0,1].
// The format is detected from the file contents
func NewImageFromFile(fileName string, id int) (*Image, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	src, _, err := image.Decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", fileName, err)
	}
	f := NewImageFromGoImage(src)
	f.ID, f.FileName = id, fileName
	return f, nil
}

// Converts a Go image into a planar RGB image with intensities in [0,1].
// Sixteen bit sources retain their full precision
func NewImageFromGoImage(src image.Image) *Image {
	b := src.Bounds()
	f := NewImage(b.Dx(), b.Dy(), 3)
	n := f.Pixels()
	red, green, blue := f.Data[:n], f.Data[n:2*n], f.Data[2*n:]

	switch s := src.(type) {
	case *image.Gray:
		for y := 0; y < f.Height; y++ {
			row := s.Pix[y*s.Stride : y*s.Stride+f.Width]
			for x, v := range row {
				g := float64(v) / 255
				red[y*f.Width+x], green[y*f.Width+x], blue[y*f.Width+x] = g, g, g
			}
		}
	default:
		for y := 0; y < f.Height; y++ {
			yoffset := y * f.Width
			for x := 0; x < f.Width; x++ {
				r, g, bl, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
				red[yoffset+x] = float64(r) / 65535
				green[yoffset+x] = float64(g) / 65535
				blue[yoffset+x] = float64(bl) / 65535
			}
		}
	}
	return f
}
