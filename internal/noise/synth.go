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

package noise

import (
	"fmt"
	"math"

	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/valyala/fastrand"
)

// Above this mean, Poisson variates are drawn from a rounded normal approximation
const poissonNormalApprox = 64

// Fills dst with src corrupted by noise of the given model and standard deviation,
// relative to intensities in [0,1]. A zero seed draws a random seed
func Synthesize(dst, src []float64, m Model, sigma float64, seed uint32) error {
	if len(dst) != len(src) {
		return fmt.Errorf("%w: %d destination vs %d source samples", fault.ErrInvalidParameter, len(dst), len(src))
	}
	if !(sigma > 0) {
		return fmt.Errorf("%w: sigma must be positive", fault.ErrInvalidParameter)
	}
	rng := fastrand.RNG{}
	if seed != 0 {
		rng.Seed(seed)
	}

	switch m {
	case Gaussian:
		for i, x := range src {
			dst[i] = x + sigma*normal(&rng)
		}
	case Laplace:
		b := sigma / math.Sqrt2
		for i, x := range src {
			u := uniform(&rng) - 0.5
			if u < 0 {
				dst[i] = x + b*math.Log(1+2*u)
			} else {
				dst[i] = x - b*math.Log(1-2*u)
			}
		}
	case Poisson:
		mean := 0.0
		for _, x := range src {
			mean += x
		}
		mean /= float64(len(src))
		if !(mean > 0) {
			return fmt.Errorf("%w: Poisson noise needs an image with positive mean", fault.ErrInvalidParameter)
		}
		a := sigma * sigma / mean
		for i, x := range src {
			if x <= 0 {
				dst[i] = 0
				continue
			}
			dst[i] = a * poisson(&rng, x/a)
		}
	default:
		return fmt.Errorf("%w %d", fault.ErrUnknownModel, int(m))
	}
	return nil
}

// Uniform variate in the open interval (0,1)
func uniform(rng *fastrand.RNG) float64 {
	return (float64(rng.Uint32()) + 0.5) / (1 << 32)
}

// Standard normal variate via the Box-Muller transform
func normal(rng *fastrand.RNG) float64 {
	u1, u2 := uniform(rng), uniform(rng)
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Poisson variate with the given mean. Uses Knuth's multiplication method for
// small means, and a rounded normal approximation for large ones
func poisson(rng *fastrand.RNG, mean float64) float64 {
	if mean > poissonNormalApprox {
		k := math.Floor(mean + math.Sqrt(mean)*normal(rng) + 0.5)
		if k < 0 {
			k = 0
		}
		return k
	}
	limit, p, k := math.Exp(-mean), 1.0, 0.0
	for {
		p *= uniform(rng)
		if p <= limit {
			return k
		}
		k++
	}
}
