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

package ops

import (
	"fmt"

	"github.com/mlnoga/tvdenoise/internal/denoise"
	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/mlnoga/tvdenoise/internal/img"
	"github.com/mlnoga/tvdenoise/internal/noise"
	"github.com/mlnoga/tvdenoise/internal/stats"
)

// Denoises each input with total variation regularization. Takes n inputs, produces n outputs
type OpDenoise struct {
	OpUnaryBase
	Model     string  `json:"model"`     // Noise model name
	Sigma     float64 `json:"sigma"`     // Noise standard deviation in display units [0,255], zero to use Lambda
	Lambda    float64 `json:"lambda"`    // Fixed fidelity weight, used if Sigma is zero
	AutoSigma bool    `json:"autoSigma"` // Estimate sigma from the image if Sigma is zero
}

func init() { SetOperatorFactory(func() Operator { return NewOpDenoiseDefault() }) } // register the operator for JSON decoding

func NewOpDenoiseDefault() *OpDenoise { return NewOpDenoise(noise.Gaussian.String(), 0, 0) }

func NewOpDenoise(model string, sigma, lambda float64) *OpDenoise {
	op := OpDenoise{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "denoise", Active: true}},
		Model:       model,
		Sigma:       sigma,
		Lambda:      lambda,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpDenoise) Apply(f *img.Image, c *Context) (result *img.Image, err error) {
	if _, err = noise.ParseModel(op.Model); err != nil {
		return nil, err
	}
	if f.NumChannels == 3 && f.IsGrayscale() {
		fmt.Fprintf(c.Log, "%d: Image is grayscale, denoising a single channel\n", f.ID)
		f.ToMono()
	}

	sigma := op.Sigma
	if !(sigma > 0) && op.AutoSigma {
		if sigma, err = estimateSigma(f); err != nil {
			fmt.Fprintf(c.Log, "%d: Warning: noise fit failed, using robust estimate: %v\n", f.ID, err)
		}
		fmt.Fprintf(c.Log, "%d: Estimated noise level %.3f\n", f.ID, sigma)
		if !(sigma > 0) && !(op.Lambda > 0) {
			return nil, fmt.Errorf("%d: %w: no noise detected and no lambda given", f.ID, fault.ErrInvalidParameter)
		}
	}

	if err = denoise.CheckMemory(f.Width, f.Height, f.NumChannels, c.WorkMemoryMB); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	solver := c.Solver
	if solver == nil {
		solver = denoise.TVSolver{Threads: c.MaxThreads}
	}

	u := img.NewImageFromImage(f)
	params := denoise.Params{Model: op.Model, Sigma: sigma / denoise.DisplayScale, Lambda: op.Lambda}
	rep, err := denoise.Denoise(u, f, params, solver, c.Log)
	if err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	fmt.Fprintf(c.Log, "%d: Denoised %s image with lambda %.4f in %d solver calls\n",
		u.ID, u.DimensionsToString(), rep.Lambda, rep.Calls)
	return u, nil
}

// Estimates the noise level of an image in display units, averaged over its channels
func estimateSigma(f *img.Image) (sigma float64, err error) {
	for ch := 0; ch < f.NumChannels; ch++ {
		s, e := stats.EstimateNoise(f.Plane(ch), f.Width, f.Height)
		if e != nil && err == nil {
			err = e
		}
		sigma += s
	}
	return denoise.DisplayScale * sigma / float64(f.NumChannels), err
}

// Adds synthetic noise to each input. Takes n inputs, produces n outputs
type OpNoise struct {
	OpUnaryBase
	Model string  `json:"model"` // Noise model name
	Sigma float64 `json:"sigma"` // Noise standard deviation in display units [0,255]
	Seed  uint32  `json:"seed"`  // Random seed, or zero for a random one
}

func init() { SetOperatorFactory(func() Operator { return NewOpNoiseDefault() }) } // register the operator for JSON decoding

func NewOpNoiseDefault() *OpNoise { return NewOpNoise(noise.Gaussian.String(), 0, 0) }

func NewOpNoise(model string, sigma float64, seed uint32) *OpNoise {
	op := OpNoise{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "noise", Active: true}},
		Model:       model,
		Sigma:       sigma,
		Seed:        seed,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpNoise) Apply(f *img.Image, c *Context) (result *img.Image, err error) {
	m, err := noise.ParseModel(op.Model)
	if err != nil {
		return nil, err
	}
	if f.NumChannels == 3 && f.IsGrayscale() {
		f.ToMono() // keep grayscale images gray
	}
	seed := op.Seed
	if seed != 0 {
		seed += uint32(f.ID) // distinct noise per image of a batch
	}
	result = img.NewImageFromImage(f)
	if err = noise.Synthesize(result.Data, f.Data, m, op.Sigma/denoise.DisplayScale, seed); err != nil {
		return nil, fmt.Errorf("%d: %w", f.ID, err)
	}
	fmt.Fprintf(c.Log, "%d: Added %v noise with sigma %.3f, distance %.5f\n", f.ID, m, op.Sigma,
		denoise.DisplayScale*stats.ComputeRmse(f.Data, result.Data))
	return result, nil
}

// Compares each input with a reference image, logging RMSE and PSNR, and optionally
// writes a colorized difference image. Takes n inputs, produces the same n outputs
type OpDiff struct {
	OpUnaryBase
	Reference   string  `json:"reference"`   // File name of the reference image
	FilePattern string  `json:"filePattern"` // Difference image file name, with %d for the image ID. Empty for none
	Scale       float64 `json:"scale"`       // Amplification of differences in the difference image
}

func init() { SetOperatorFactory(func() Operator { return NewOpDiffDefault() }) } // register the operator for JSON decoding

func NewOpDiffDefault() *OpDiff { return NewOpDiff("", "", 4) }

func NewOpDiff(reference, filePattern string, scale float64) *OpDiff {
	op := OpDiff{
		OpUnaryBase: OpUnaryBase{OpBase: OpBase{Type: "diff", Active: reference != ""}},
		Reference:   reference,
		FilePattern: filePattern,
		Scale:       scale,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return &op
}

// Checks the difference image file suffix before any input is computed
func (op *OpDiff) MakePromises(ins []Promise, c *Context) (outs []Promise, err error) {
	if op.Active && op.FilePattern != "" {
		if err = checkWritable(op.FilePattern, img.DefaultJPEGQuality); err != nil {
			return nil, err
		}
	}
	return op.OpUnaryBase.MakePromises(ins, c)
}

func (op *OpDiff) Apply(f *img.Image, c *Context) (result *img.Image, err error) {
	if op.Reference == "" {
		return f, nil
	}
	if err = c.checkPath(op.Reference); err != nil {
		return nil, err
	}
	ref, err := img.NewImageFromFile(op.Reference, f.ID)
	if err != nil {
		return nil, fault.Wrap(fault.ErrIO, err)
	}
	if f.NumChannels == 1 && ref.IsGrayscale() {
		ref.ToMono()
	}
	if !f.SameShape(ref) {
		return nil, fmt.Errorf("%d: %w: image is %s, reference %s is %s", f.ID, fault.ErrInvalidParameter,
			f.DimensionsToString(), op.Reference, ref.DimensionsToString())
	}

	rmse := stats.ComputeRmse(ref.Data, f.Data)
	fmt.Fprintf(c.Log, "%d: Distance to reference %s: RMSE %.5f, PSNR %.2f dB\n",
		f.ID, op.Reference, denoise.DisplayScale*rmse, stats.PSNR(rmse, 1))

	if op.FilePattern != "" {
		diff, err := img.NewDiffImage(f, ref, op.Scale)
		if err != nil {
			return nil, fmt.Errorf("%d: %w: %v", f.ID, fault.ErrInvalidParameter, err)
		}
		if _, err = NewOpSave(op.FilePattern, img.DefaultJPEGQuality).Apply(diff, c); err != nil {
			return nil, err
		}
	}
	return f, nil
}
