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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/mlnoga/tvdenoise/internal/ops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJobYAML(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(fileName, []byte(`
input: noisy.png
output: denoised.jpg
model: laplace
sigma: 12.5
reference: clean.png
diffOutput: diff.png
`), 0o644))

	job, err := LoadJob(fileName)
	require.NoError(t, err)
	assert.Equal(t, "noisy.png", job.Input)
	assert.Equal(t, "laplace", job.Model)
	assert.Equal(t, 12.5, job.Sigma)
	assert.Equal(t, 95, job.Quality, "default kept")
	assert.Equal(t, 4.0, job.DiffScale, "default kept")
	assert.NoError(t, job.Validate())
}

func TestLoadJobJSON(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(fileName,
		[]byte(`{"input": "a.png", "output": "b.png", "model": "poisson", "lambda": 8, "quality": 80}`), 0o644))

	job, err := LoadJob(fileName)
	require.NoError(t, err)
	assert.Equal(t, "poisson", job.Model)
	assert.Equal(t, 8.0, job.Lambda)
	assert.Equal(t, 80, job.Quality)
	assert.NoError(t, job.Validate())
}

func TestLoadJobErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadJob(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, fault.ErrIO)

	fileName := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(fileName, []byte("sigma: [1, 2"), 0o644))
	_, err = LoadJob(fileName)
	assert.ErrorIs(t, err, fault.ErrInvalidParameter)
}

func TestValidate(t *testing.T) {
	valid := func() Job {
		j := DefaultJob()
		j.Input, j.Output, j.Sigma = "in.png", "out.png", 10
		return j
	}
	tcs := []struct {
		Name string
		Mod  func(j *Job)
		Want error
	}{
		{"valid", func(j *Job) {}, nil},
		{"fixed lambda", func(j *Job) { j.Sigma, j.Lambda = 0, 5 }, nil},
		{"auto sigma", func(j *Job) { j.Sigma, j.AutoSigma = 0, true }, nil},
		{"model alias", func(j *Job) { j.Model = "L1" }, nil},
		{"unknown model", func(j *Job) { j.Model = "uniform" }, fault.ErrUnknownModel},
		{"no input", func(j *Job) { j.Input = "" }, fault.ErrInvalidParameter},
		{"no output", func(j *Job) { j.Output = "" }, fault.ErrInvalidParameter},
		{"negative sigma", func(j *Job) { j.Sigma = -1 }, fault.ErrInvalidParameter},
		{"sigma and lambda", func(j *Job) { j.Lambda = 5 }, fault.ErrInvalidParameter},
		{"neither sigma nor lambda", func(j *Job) { j.Sigma = 0 }, fault.ErrInvalidParameter},
		{"quality", func(j *Job) { j.Quality = 101 }, fault.ErrInvalidParameter},
		{"quality zero", func(j *Job) { j.Quality = 0 }, fault.ErrInvalidParameter},
		{"quality one", func(j *Job) { j.Quality = 1 }, nil},
		{"unknown output suffix", func(j *Job) { j.Output = "out.xyz" }, fault.ErrInvalidParameter},
		{"unknown diff suffix", func(j *Job) { j.Reference, j.DiffOutput = "ref.png", "diff.xyz" }, fault.ErrInvalidParameter},
		{"wildcard input", func(j *Job) { j.Input, j.Output = "frames/*.png", "out%d.png" }, nil},
		{"wildcard input single output", func(j *Job) { j.Input = "frames/*.png" }, fault.ErrInvalidParameter},
		{"wildcard input single diff", func(j *Job) {
			j.Input, j.Output, j.Reference, j.DiffOutput = "f?.png", "out%d.png", "ref.png", "diff.png"
		}, fault.ErrInvalidParameter},
		{"diff without reference", func(j *Job) { j.DiffOutput = "diff.png" }, fault.ErrInvalidParameter},
	}
	for _, tc := range tcs {
		j := valid()
		tc.Mod(&j)
		err := j.Validate()
		if tc.Want == nil {
			assert.NoError(t, err, tc.Name)
		} else {
			assert.ErrorIs(t, err, tc.Want, tc.Name)
		}
	}
}

func TestPipeline(t *testing.T) {
	j := DefaultJob()
	j.Input, j.Output, j.Lambda = "in.png", "out.tif", 3
	seq := j.Pipeline()
	require.Len(t, seq.Steps, 3)
	assert.IsType(t, &ops.OpLoad{}, seq.Steps[0])
	den := seq.Steps[1].(*ops.OpDenoise)
	assert.Equal(t, 3.0, den.Lambda)
	assert.Equal(t, "out.tif", seq.Steps[2].(*ops.OpSave).FilePattern)

	j.Input, j.Reference, j.AutoSigma = "frames/*.png", "clean.png", true
	seq = j.Pipeline()
	require.Len(t, seq.Steps, 4)
	assert.IsType(t, &ops.OpLoadMany{}, seq.Steps[0])
	assert.True(t, seq.Steps[1].(*ops.OpDenoise).AutoSigma)
	assert.Equal(t, "clean.png", seq.Steps[2].(*ops.OpDiff).Reference)
}
