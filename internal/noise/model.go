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

// Package noise holds the supported noise models: their empirical lambda
// estimates for discrepancy-based calibration, and synthesis of noisy images.
package noise

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mlnoga/tvdenoise/internal/fault"
)

// A noise model, i.e. the distribution of the observed noise
type Model int

const (
	Gaussian Model = iota // Additive white Gaussian noise, Y ~ Normal(X, sigma^2)
	Laplace               // Laplace noise, Y ~ Laplace(X, sigma/sqrt(2))
	Poisson               // Poisson noise, Y ~ Poisson(X/a) a with a = sigma^2 / mean(X)
)

// Smallest lambda ever used. Prevents a solve without any fidelity term
const MinLambda = 1e-4

var modelNames = map[string]Model{
	"gaussian": Gaussian,
	"l2":       Gaussian,
	"laplace":  Laplace,
	"l1":       Laplace,
	"poisson":  Poisson,
}

// Returns the noise model with the given name, case insensitive
func ParseModel(name string) (Model, error) {
	if m, ok := modelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m, nil
	}
	return Gaussian, fmt.Errorf("%w \"%s\"", fault.ErrUnknownModel, name)
}

// Parses a noise option of the form <model> or <model>:<sigma>. Sigma is returned
// as given, in display units. It is zero if absent, and must be positive otherwise
func ParseModelSigma(s string) (m Model, sigma float64, err error) {
	name, sigmaStr, hasSigma := strings.Cut(s, ":")
	if m, err = ParseModel(name); err != nil {
		return m, 0, err
	}
	if !hasSigma {
		return m, 0, nil
	}
	sigma, err = strconv.ParseFloat(sigmaStr, 64)
	if err != nil || !(sigma > 0) || math.IsInf(sigma, 1) {
		return m, 0, fmt.Errorf("%w: sigma must be positive, got \"%s\"", fault.ErrInvalidParameter, sigmaStr)
	}
	return m, sigma, nil
}

func (m Model) String() string {
	switch m {
	case Gaussian:
		return "gaussian"
	case Laplace:
		return "laplace"
	case Poisson:
		return "poisson"
	}
	return "Model(" + strconv.Itoa(int(m)) + ")"
}

func (m Model) Valid() bool { return m >= Gaussian && m <= Poisson }

func (m Model) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w %d", fault.ErrUnknownModel, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Model) UnmarshalText(text []byte) (err error) {
	*m, err = ParseModel(string(text))
	return err
}

// Empirical estimate of the optimal lambda for the given noise level, with sigma
// relative to intensities in [0,1]. Clamped to MinLambda
func InitialLambda(m Model, sigma float64) (lambda float64, err error) {
	switch m {
	case Gaussian:
		lambda = 0.7079/sigma + 0.002686/(sigma*sigma)
	case Laplace:
		lambda = (-0.00416*sigma + 0.001301) /
			(((sigma-0.2042)*sigma+0.01635)*sigma + 5.836e-4)
	case Poisson:
		lambda = 0.2839/sigma + 0.001502/(sigma*sigma)
	default:
		return 0, fmt.Errorf("%w %d", fault.ErrUnknownModel, int(m))
	}
	if !(lambda >= MinLambda) { // also catches NaN
		lambda = MinLambda
	}
	return lambda, nil
}

// Rescales lambda after a solve whose residual rmse is compared against the target sigma.
// A residual above target means too much smoothing, so lambda grows, and vice versa.
// A degenerate zero residual falls back to MinLambda, so lambda stays positive
func UpdateLambda(m Model, lambda, rmse, sigma float64) (float64, error) {
	switch m {
	case Gaussian, Poisson:
		lambda *= rmse / sigma
	case Laplace:
		lambda *= math.Sqrt(rmse / sigma)
	default:
		return 0, fmt.Errorf("%w %d", fault.ErrUnknownModel, int(m))
	}
	if !(lambda > 0) {
		lambda = MinLambda
	}
	return lambda, nil
}
