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
	"testing"

	"github.com/mlnoga/tvdenoise/internal/noise"
)

func TestComputeRmse(t *testing.T) {
	a := []float64{0.1, 0.5, 0.9, 0.3}
	b := []float64{0.2, 0.5, 0.6, 0.7}

	if r := ComputeRmse(a, a); r != 0 {
		t.Errorf("rmse(a,a)=%g; want 0", r)
	}
	if ab, ba := ComputeRmse(a, b), ComputeRmse(b, a); ab != ba {
		t.Errorf("rmse(a,b)=%g rmse(b,a)=%g; want equal", ab, ba)
	}
	want := math.Sqrt((0.01 + 0 + 0.09 + 0.16) / 4)
	if r := ComputeRmse(a, b); math.Abs(r-want) > 1e-12 {
		t.Errorf("rmse=%g; want %g", r, want)
	}
	if r := ComputeRmse(nil, nil); r != 0 {
		t.Errorf("rmse of empty=%g; want 0", r)
	}
}

func TestPSNR(t *testing.T) {
	if p := PSNR(0.1, 1); math.Abs(p-20) > 1e-12 {
		t.Errorf("psnr=%g; want 20", p)
	}
}

func TestHistogram(t *testing.T) {
	bins := make([]int32, 4)
	Histogram([]float64{-1, 0, 0.1, 0.3, 0.55, 0.99, 1, 2}, 0, 1, bins)
	want := []int32{2, 1, 1, 1}
	for i := range bins {
		if bins[i] != want[i] {
			t.Errorf("bins=%v; want %v", bins, want)
			break
		}
	}
	if x, y := GetPeak(bins, 0, 1); x != 0.125 || y != 2 {
		t.Errorf("peak=(%g,%g); want (0.125,2)", x, y)
	}
}

func TestEstimateNoise(t *testing.T) {
	width, height := 128, 128
	clean := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			// two flat regions with a vertical edge
			if x < width/2 {
				clean[y*width+x] = 0.25
			} else {
				clean[y*width+x] = 0.75
			}
		}
	}
	for _, sigma := range []float64{0.02, 0.05, 0.1} {
		noisy := make([]float64, len(clean))
		if err := noise.Synthesize(noisy, clean, noise.Gaussian, sigma, 11); err != nil {
			t.Fatal(err)
		}
		est, err := EstimateNoise(noisy, width, height)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(est-sigma) > 0.1*sigma {
			t.Errorf("estimated sigma %.4f; want %.4f", est, sigma)
		}
	}

	if est, _ := EstimateNoise(clean, width, height); est != 0 {
		t.Errorf("noise free image gave sigma %g", est)
	}
}
