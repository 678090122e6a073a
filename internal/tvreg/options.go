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

// Package tvreg restores images by total variation regularization: it minimizes
//
//	TV(u) + lambda * F(u, f)
//
// where TV is the vectorial total variation over all channels, and the fidelity F
// follows the noise model: lambda/2 ||u-f||^2 for Gaussian, lambda ||u-f||_1 for
// Laplace, and lambda sum(u - f log u) for Poisson noise.
package tvreg

import (
	"fmt"
	"runtime"

	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/mlnoga/tvdenoise/internal/noise"
)

// Called after each iteration with the iteration number, starting at 1, and the
// relative change of the iterate
type ProgressFunc func(iter int, delta float64)

// Options for Restore. Each denoising run owns its own options
type Options struct {
	model    noise.Model
	lambda   float64
	tol      float64
	maxIter  int
	threads  int
	progress ProgressFunc
}

// Creates options with defaults: Gaussian noise, lambda 25, tolerance 1e-3,
// at most 100 iterations, one thread per available CPU
func NewOptions() *Options {
	return &Options{
		model:   noise.Gaussian,
		lambda:  25,
		tol:     1e-3,
		maxIter: 100,
		threads: runtime.GOMAXPROCS(0),
	}
}

// Selects the noise model by name
func (o *Options) SetNoiseModel(name string) error {
	m, err := noise.ParseModel(name)
	if err != nil {
		return err
	}
	o.model = m
	return nil
}

func (o *Options) SetModel(m noise.Model) {
	o.model = m
}

func (o *Options) SetLambda(lambda float64) {
	o.lambda = lambda
}

func (o *Options) SetTol(tol float64) {
	o.tol = tol
}

func (o *Options) SetMaxIter(maxIter int) {
	o.maxIter = maxIter
}

func (o *Options) SetProgress(f ProgressFunc) {
	o.progress = f
}

// Sets the number of goroutines per iteration. Values below one mean one
func (o *Options) SetThreads(threads int) {
	if threads < 1 {
		threads = 1
	}
	o.threads = threads
}

func (o *Options) Model() noise.Model {
	return o.model
}

func (o *Options) Lambda() float64 {
	return o.lambda
}

func (o *Options) Tol() float64 {
	return o.tol
}

func (o *Options) MaxIter() int {
	return o.maxIter
}

func (o *Options) Threads() int {
	return o.threads
}

func (o *Options) Progress() ProgressFunc {
	return o.progress
}

func (o *Options) validate() error {
	if !o.model.Valid() {
		return fmt.Errorf("%w %d", fault.ErrUnknownModel, int(o.model))
	}
	if !(o.lambda > 0) {
		return fmt.Errorf("%w: lambda must be positive, got %g", fault.ErrInvalidParameter, o.lambda)
	}
	if !(o.tol > 0) {
		return fmt.Errorf("%w: tolerance must be positive, got %g", fault.ErrInvalidParameter, o.tol)
	}
	if o.maxIter < 1 {
		return fmt.Errorf("%w: maximum iterations must be positive, got %d", fault.ErrInvalidParameter, o.maxIter)
	}
	return nil
}

func (o *Options) String() string {
	return fmt.Sprintf("model=%v lambda=%.4g tol=%.1e maxIter=%d threads=%d", o.model, o.lambda, o.tol, o.maxIter, o.threads)
}
