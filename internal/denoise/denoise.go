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

// Package denoise restores noisy images with total variation regularization.
// If the noise level is known, the fidelity weight lambda is calibrated so that
// the distance between the noisy input and the result matches the noise level.
package denoise

import (
	"fmt"
	"io"

	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/mlnoga/tvdenoise/internal/img"
	"github.com/mlnoga/tvdenoise/internal/noise"
	"github.com/mlnoga/tvdenoise/internal/stats"
	"github.com/mlnoga/tvdenoise/internal/tvreg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DisplayScale         = 255 // Scale of noise levels and distances in user facing output
	LambdaTuneIterations = 5   // Number of lambda calibration rounds

	CoarseTol     = 1e-2 // Solver tolerance during calibration
	CoarseMaxIter = 40   // Solver iteration limit during calibration
	FinalTol      = 5e-4 // Solver tolerance of the final pass
	FinalMaxIter  = 100  // Solver iteration limit of the final pass
)

// A TV restoration solver. Restore uses u as initial guess and overwrites it
// with the result for the noisy image f
type Solver interface {
	Restore(u, f *img.Image, opt *tvreg.Options) (tvreg.Result, error)
}

// The default solver, backed by package tvreg
type TVSolver struct {
	Threads int // Worker threads, or the option default if zero
}

func (s TVSolver) Restore(u, f *img.Image, opt *tvreg.Options) (tvreg.Result, error) {
	if s.Threads > 0 {
		opt.SetThreads(s.Threads)
	}
	if !u.SameShape(f) {
		return tvreg.Result{}, fmt.Errorf("%w: %s and %s images", fault.ErrInvalidParameter,
			u.DimensionsToString(), f.DimensionsToString())
	}
	return tvreg.Restore(u.Data, f.Data, f.Width, f.Height, f.NumChannels, opt)
}

// Parameters of a denoising run
type Params struct {
	Model  string  // Noise model name, see noise.ParseModel
	Sigma  float64 // Noise standard deviation relative to intensities in [0,1]. Zero or less to use Lambda
	Lambda float64 // Fixed fidelity weight, used only if Sigma is not positive
}

// Outcome of a denoising run
type Report struct {
	Lambda float64 // Fidelity weight of the final pass
	Rmse   float64 // Distance between input and result in display units, if Sigma was given
	Calls  int     // Number of solver invocations
}

// Denoises f into u. If p.Sigma is positive, lambda is calibrated to the noise level,
// otherwise p.Lambda is used as is. Progress is written to log
func Denoise(u, f *img.Image, p Params, solver Solver, log io.Writer) (rep Report, err error) {
	model, err := noise.ParseModel(p.Model)
	if err != nil {
		return rep, err
	}
	if !(p.Sigma > 0) && !(p.Lambda > 0) {
		return rep, fmt.Errorf("%w: need a positive noise level or lambda", fault.ErrInvalidParameter)
	}
	if !u.SameShape(f) {
		return rep, fmt.Errorf("%w: output is %s, input %s", fault.ErrInvalidParameter,
			u.DimensionsToString(), f.DimensionsToString())
	}
	if log == nil {
		log = io.Discard
	}
	counter := &countingSolver{Solver: solver}

	fmt.Fprintf(log, "TV regularized denoising with %s noise model\n",
		cases.Title(language.English).String(model.String()))

	// initial guess u = f
	if err = u.CopyFrom(f); err != nil {
		return rep, fmt.Errorf("%w: %v", fault.ErrInvalidParameter, err)
	}
	opt := tvreg.NewOptions()
	opt.SetModel(model)
	opt.SetTol(CoarseTol)
	opt.SetMaxIter(CoarseMaxIter)

	if p.Sigma > 0 {
		lambda, err := Calibrate(u, f, model, p.Sigma, opt, counter, log)
		if err != nil {
			return Report{Calls: counter.calls}, err
		}
		opt.SetLambda(lambda)
	} else {
		opt.SetLambda(p.Lambda)
		if _, err = counter.Restore(u, f, opt); err != nil {
			return Report{Calls: counter.calls}, fault.Wrap(fault.ErrSolver, err)
		}
	}

	opt.SetTol(FinalTol)
	opt.SetMaxIter(FinalMaxIter)
	if _, err = counter.Restore(u, f, opt); err != nil {
		return Report{Calls: counter.calls}, fault.Wrap(fault.ErrSolver, err)
	}

	rep = Report{Lambda: opt.Lambda(), Calls: counter.calls}
	if p.Sigma > 0 {
		rep.Rmse = DisplayScale * stats.ComputeRmse(f.Data, u.Data)
		fmt.Fprintf(log, " %.5f\n\n", rep.Rmse)
	}
	return rep, nil
}

// Calibrates lambda by the discrepancy principle: starting from the empirical estimate
// for the noise model, each round restores u and rescales lambda by the ratio of the
// achieved distance to sigma. Runs a fixed number of rounds. Returns the final lambda,
// which is also set in opt
func Calibrate(u, f *img.Image, m noise.Model, sigma float64, opt *tvreg.Options, solver Solver, log io.Writer) (float64, error) {
	lambda, err := noise.InitialLambda(m, sigma)
	if err != nil {
		return 0, err
	}
	if log == nil {
		log = io.Discard
	}
	opt.SetModel(m)
	opt.SetLambda(lambda)

	fmt.Fprintf(log, "Tuning lambda...\n\n")
	fmt.Fprintf(log, "  lambda    distance (target = %.5f)\n", DisplayScale*sigma)
	fmt.Fprintf(log, " --------------------\n")
	fmt.Fprintf(log, "  %-9.4f", lambda)

	for k := 0; k < LambdaTuneIterations; k++ {
		if _, err := solver.Restore(u, f, opt); err != nil {
			fmt.Fprintln(log)
			return 0, fault.Wrap(fault.ErrSolver, fmt.Errorf("calibration round %d: %w", k+1, err))
		}
		rmse := stats.ComputeRmse(f.Data, u.Data)
		if lambda, err = noise.UpdateLambda(m, lambda, rmse, sigma); err != nil {
			return 0, err
		}
		opt.SetLambda(lambda)
		fmt.Fprintf(log, " %.5f\n  %-9.4f", DisplayScale*rmse, lambda)
	}
	return lambda, nil
}

// Counts solver invocations
type countingSolver struct {
	Solver
	calls int
}

func (s *countingSolver) Restore(u, f *img.Image, opt *tvreg.Options) (tvreg.Result, error) {
	s.calls++
	return s.Solver.Restore(u, f, opt)
}
