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

// Package config describes denoising jobs, as read from YAML or JSON files
// or received by the HTTP API, and turns them into operator pipelines.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/mlnoga/tvdenoise/internal/img"
	"github.com/mlnoga/tvdenoise/internal/noise"
	"github.com/mlnoga/tvdenoise/internal/ops"
	"gopkg.in/yaml.v3"
)

// A denoising job
type Job struct {
	Input      string  `yaml:"input" json:"input" validate:"required"`
	Output     string  `yaml:"output" json:"output" validate:"required"`
	Model      string  `yaml:"model" json:"model" validate:"noisemodel"`
	Sigma      float64 `yaml:"sigma" json:"sigma" validate:"gte=0,lte=255"` // noise level in display units
	Lambda     float64 `yaml:"lambda" json:"lambda" validate:"gte=0"`
	AutoSigma  bool    `yaml:"autoSigma" json:"autoSigma"`
	Quality    int     `yaml:"quality" json:"quality" validate:"gte=1,lte=100"`
	Reference  string  `yaml:"reference" json:"reference"`
	DiffOutput string  `yaml:"diffOutput" json:"diffOutput" validate:"excluded_without=Reference"`
	DiffScale  float64 `yaml:"diffScale" json:"diffScale" validate:"gte=0"`
}

var jobValidate *validator.Validate

func init() {
	jobValidate = validator.New()
	_ = jobValidate.RegisterValidation("noisemodel", validateNoiseModel)
}

func validateNoiseModel(fl validator.FieldLevel) bool {
	_, err := noise.ParseModel(fl.Field().String())
	return err == nil
}

// Returns a job with default settings and no files
func DefaultJob() Job {
	return Job{
		Model:     noise.Gaussian.String(),
		Quality:   img.DefaultJPEGQuality,
		DiffScale: 4,
	}
}

// Loads a job from a YAML or JSON file. Unset fields keep their defaults
func LoadJob(fileName string) (Job, error) {
	job := DefaultJob()
	data, err := os.ReadFile(fileName)
	if err != nil {
		return job, fault.Wrap(fault.ErrIO, err)
	}
	if err = yaml.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("%w: parsing %s: %v", fault.ErrInvalidParameter, fileName, err)
	}
	return job, nil
}

// Checks field ranges, and that the job gives exactly one way to choose lambda
func (j *Job) Validate() error {
	if err := jobValidate.Struct(j); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "noisemodel" {
			return fmt.Errorf("%w \"%s\"", fault.ErrUnknownModel, j.Model)
		}
		return fmt.Errorf("%w: %v", fault.ErrInvalidParameter, err)
	}
	switch {
	case j.Sigma > 0 && j.Lambda > 0:
		return fmt.Errorf("%w: sigma and lambda are mutually exclusive", fault.ErrInvalidParameter)
	case j.Sigma == 0 && j.Lambda == 0 && !j.AutoSigma:
		return fmt.Errorf("%w: one of sigma, lambda or autoSigma is required", fault.ErrInvalidParameter)
	}
	if err := img.CheckWritable(j.Output, j.Quality); err != nil {
		return fmt.Errorf("%w: output: %v", fault.ErrInvalidParameter, err)
	}
	if j.DiffOutput != "" {
		if err := img.CheckWritable(j.DiffOutput, img.DefaultJPEGQuality); err != nil {
			return fmt.Errorf("%w: difference output: %v", fault.ErrInvalidParameter, err)
		}
	}
	if j.hasWildcards() {
		if !strings.Contains(j.Output, "%d") {
			return fmt.Errorf("%w: output %s needs %%d for the image number when the input has wildcards",
				fault.ErrInvalidParameter, j.Output)
		}
		if j.DiffOutput != "" && !strings.Contains(j.DiffOutput, "%d") {
			return fmt.Errorf("%w: difference output %s needs %%d for the image number when the input has wildcards",
				fault.ErrInvalidParameter, j.DiffOutput)
		}
	}
	return nil
}

func (j *Job) hasWildcards() bool {
	return strings.ContainsAny(j.Input, "*?[")
}

// Builds the operator pipeline for the job: load, denoise, optionally compare
// against the reference, and save. Inputs with wildcards load many files
func (j *Job) Pipeline() *ops.OpSequence {
	var load ops.Operator
	if j.hasWildcards() {
		load = ops.NewOpLoadMany([]string{j.Input})
	} else {
		load = ops.NewOpLoad(0, j.Input)
	}
	den := ops.NewOpDenoise(j.Model, j.Sigma, j.Lambda)
	den.AutoSigma = j.AutoSigma

	seq := ops.NewOpSequence(load, den)
	if j.Reference != "" {
		seq.Append(ops.NewOpDiff(j.Reference, j.DiffOutput, j.DiffScale))
	}
	seq.Append(ops.NewOpSave(j.Output, j.Quality))
	return seq
}
