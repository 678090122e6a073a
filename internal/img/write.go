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
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Default quality for writing JPEG images
const DefaultJPEGQuality = 95

var (
	ErrUnknownSuffix = errors.New("unknown file suffix")
	ErrQuality       = errors.New("quality must be between 1 and 100")
)

// Checks that an image can be written to the given file name with the given quality,
// without writing anything
func CheckWritable(fileName string, quality int) error {
	_, err := encoderFor(fileName, quality)
	return err
}

// Writes the image to the given file, choosing the format from the file suffix:
// .png (16 bit), .jpg or .jpeg (8 bit, given quality), .bmp (8 bit), .tif or .tiff (16 bit).
// Data is written to a temporary file first, so a failed write leaves no partial output
func (f *Image) WriteFile(fileName string, quality int) (err error) {
	encode, err := encoderFor(fileName, quality)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(fileName), "."+filepath.Base(fileName)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	writer := bufio.NewWriter(tmp)
	if err = encode(writer, f); err != nil {
		return err
	}
	if err = writer.Flush(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fileName)
}

type encoderFunc func(w io.Writer, f *Image) error

func encoderFor(fileName string, quality int) (encoderFunc, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("%w, got %d", ErrQuality, quality)
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png":
		return func(w io.Writer, f *Image) error { return png.Encode(w, f.ToGoImage16()) }, nil
	case ".jpg", ".jpeg":
		return func(w io.Writer, f *Image) error {
			return jpeg.Encode(w, f.ToGoImage8(), &jpeg.Options{Quality: quality})
		}, nil
	case ".bmp":
		return func(w io.Writer, f *Image) error { return bmp.Encode(w, f.ToGoImage8()) }, nil
	case ".tif", ".tiff":
		return func(w io.Writer, f *Image) error {
			return tiff.Encode(w, f.ToGoImage16(), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSuffix, fileName)
}

// Converts the image into an 8-bit Go image, grayscale for single channel images
func (f *Image) ToGoImage8() image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	size := f.Pixels()
	if f.NumChannels == 1 {
		img := image.NewGray(rect)
		for y := 0; y < f.Height; y++ {
			yoffset := y * f.Width
			for x := 0; x < f.Width; x++ {
				img.SetGray(x, y, color.Gray{to8(f.Data[yoffset+x])})
			}
		}
		return img
	}
	img := image.NewRGBA(rect)
	for y := 0; y < f.Height; y++ {
		yoffset := y * f.Width
		for x := 0; x < f.Width; x++ {
			r := to8(f.Data[yoffset+x])
			g := to8(f.Data[yoffset+x+size])
			b := to8(f.Data[yoffset+x+size*2])
			img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}
	return img
}

// Converts the image into a 16-bit Go image, grayscale for single channel images
func (f *Image) ToGoImage16() image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	size := f.Pixels()
	if f.NumChannels == 1 {
		img := image.NewGray16(rect)
		for y := 0; y < f.Height; y++ {
			yoffset := y * f.Width
			for x := 0; x < f.Width; x++ {
				img.SetGray16(x, y, color.Gray16{to16(f.Data[yoffset+x])})
			}
		}
		return img
	}
	img := image.NewRGBA64(rect)
	for y := 0; y < f.Height; y++ {
		yoffset := y * f.Width
		for x := 0; x < f.Width; x++ {
			r := to16(f.Data[yoffset+x])
			g := to16(f.Data[yoffset+x+size])
			b := to16(f.Data[yoffset+x+size*2])
			img.SetRGBA64(x, y, color.RGBA64{r, g, b, 65535})
		}
	}
	return img
}

// Clamps to [0,1]. NaNs become zero, else encoders produce garbage
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func to8(v float64) uint8   { return uint8(clamp01(v)*255 + 0.5) }
func to16(v float64) uint16 { return uint16(clamp01(v)*65535 + 0.5) }
