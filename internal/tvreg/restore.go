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

package tvreg

import (
	"fmt"
	"math"

	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/mlnoga/tvdenoise/internal/noise"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Primal and dual step sizes of the Chambolle-Pock iteration.
// Their product times the squared norm of the discrete gradient (8) must not exceed one
const (
	stepPrimal = 0.25
	stepDual   = 0.5
)

// Outcome of a Restore call
type Result struct {
	Iterations int     // Number of iterations performed
	Delta      float64 // Relative change of the iterate in the last iteration
	Converged  bool    // True if Delta fell below the tolerance before the iteration limit
}

// Restores the planar image f into u. The current contents of u serve as initial guess,
// so consecutive calls with similar parameters converge quickly. Reaching the iteration
// limit is not an error; check Result.Converged
func Restore(u, f []float64, width, height, numChannels int, opt *Options) (res Result, err error) {
	if opt == nil {
		opt = NewOptions()
	}
	if err = opt.validate(); err != nil {
		return res, err
	}
	if width < 1 || height < 1 || numChannels < 1 || len(f) != width*height*numChannels || len(u) != len(f) {
		return res, fmt.Errorf("%w: %d and %d samples for a %dx%dx%d image",
			fault.ErrInvalidParameter, len(u), len(f), width, height, numChannels)
	}

	s := newState(u, f, width, height, numChannels, opt)
	for iter := 1; iter <= opt.maxIter; iter++ {
		s.parallelRows(s.updateDual)
		copy(s.uOld, u)
		s.parallelRows(s.updatePrimal)

		delta := relativeChange(u, s.uOld)
		if math.IsNaN(delta) || math.IsInf(delta, 0) {
			return res, fmt.Errorf("%w: non-finite iterate in iteration %d", fault.ErrSolver, iter)
		}
		res = Result{Iterations: iter, Delta: delta, Converged: delta < opt.tol}
		if opt.progress != nil {
			opt.progress(iter, delta)
		}
		if res.Converged {
			break
		}

		// over-relaxation: uBar = 2u - uOld
		floats.SubTo(s.uBar, u, s.uOld)
		floats.Add(s.uBar, u)
	}
	return res, nil
}

// Relative change ||u-uOld|| / ||u||, or the absolute change for a zero image
func relativeChange(u, uOld []float64) float64 {
	dist := floats.Distance(u, uOld, 2)
	if norm := floats.Norm(u, 2); norm > 0 {
		return dist / norm
	}
	return dist
}

// Working set of one Restore call
type state struct {
	u, f       []float64 // primal iterate and observed image
	uBar, uOld []float64 // over-relaxed and previous primal iterate
	px, py     []float64 // dual variable, i.e. the TV subgradient field
	width      int
	height     int
	channels   int
	model      noise.Model
	tauLambda  float64
	threads    int
}

func newState(u, f []float64, width, height, channels int, opt *Options) *state {
	s := &state{
		u:         u,
		f:         f,
		uBar:      make([]float64, len(u)),
		uOld:      make([]float64, len(u)),
		px:        make([]float64, len(u)),
		py:        make([]float64, len(u)),
		width:     width,
		height:    height,
		channels:  channels,
		model:     opt.model,
		tauLambda: stepPrimal * opt.lambda,
		threads:   opt.threads,
	}
	copy(s.uBar, u)
	return s
}

// Runs fn on horizontal bands of rows in parallel. Each band only writes its own rows
func (s *state) parallelRows(fn func(y0, y1 int)) {
	threads := s.threads
	if threads > s.height {
		threads = s.height
	}
	if threads <= 1 {
		fn(0, s.height)
		return
	}
	band := (s.height + threads - 1) / threads
	var g errgroup.Group
	for y0 := 0; y0 < s.height; y0 += band {
		y1 := min(y0+band, s.height)
		g.Go(func() error {
			fn(y0, y1)
			return nil
		})
	}
	g.Wait()
}

// Dual ascent on p with the forward difference gradient of uBar, followed by
// projection onto the unit ball jointly over both directions and all channels
func (s *state) updateDual(y0, y1 int) {
	w, h, n := s.width, s.height, s.width*s.height
	for y := y0; y < y1; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			normSq := 0.0
			for c := 0; c < s.channels; c++ {
				k := c*n + i
				var gx, gy float64
				if x+1 < w {
					gx = s.uBar[k+1] - s.uBar[k]
				}
				if y+1 < h {
					gy = s.uBar[k+w] - s.uBar[k]
				}
				s.px[k] += stepDual * gx
				s.py[k] += stepDual * gy
				normSq += s.px[k]*s.px[k] + s.py[k]*s.py[k]
			}
			if normSq > 1 {
				scale := 1 / math.Sqrt(normSq)
				for c := 0; c < s.channels; c++ {
					k := c*n + i
					s.px[k] *= scale
					s.py[k] *= scale
				}
			}
		}
	}
}

// Primal descent along the divergence of p, followed by the proximal step
// of the fidelity term
func (s *state) updatePrimal(y0, y1 int) {
	w, h, n := s.width, s.height, s.width*s.height
	tl := s.tauLambda
	for c := 0; c < s.channels; c++ {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				k := c*n + y*w + x
				div := 0.0
				if x+1 < w {
					div += s.px[k]
				}
				if x > 0 {
					div -= s.px[k-1]
				}
				if y+1 < h {
					div += s.py[k]
				}
				if y > 0 {
					div -= s.py[k-w]
				}
				v := s.u[k] + stepPrimal*div

				switch s.model {
				case noise.Gaussian:
					s.u[k] = (v + tl*s.f[k]) / (1 + tl)
				case noise.Laplace:
					if d := v - s.f[k]; d > tl {
						s.u[k] = v - tl
					} else if d < -tl {
						s.u[k] = v + tl
					} else {
						s.u[k] = s.f[k]
					}
				case noise.Poisson:
					fk := max(s.f[k], 0)
					b := v - tl
					s.u[k] = 0.5 * (b + math.Sqrt(b*b+4*tl*fk))
				}
			}
		}
	}
}
