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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/mlnoga/tvdenoise/internal/img"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(log *bytes.Buffer) *Context {
	c := NewContext(log)
	c.MaxThreads = 2
	return c
}

// Writes a piecewise constant test image into the current directory
func writeSquares(t *testing.T, fileName string, gray bool) *img.Image {
	t.Helper()
	f := img.NewImage(24, 20, 3)
	for ch := 0; ch < 3; ch++ {
		p := f.Plane(ch)
		for y := 0; y < f.Height; y++ {
			for x := 0; x < f.Width; x++ {
				v := 0.2
				if x >= 6 && x < 18 && y >= 5 && y < 15 {
					v = 0.8
				}
				if !gray {
					v += 0.05 * float64(ch)
				}
				p[y*f.Width+x] = v
			}
		}
	}
	require.NoError(t, f.WriteFile(fileName, img.DefaultJPEGQuality))
	return f
}

func TestIsPathAllowed(t *testing.T) {
	tcs := []struct {
		Path string
		Want bool
	}{
		{"a.png", true},
		{"sub/dir/a.png", true},
		{"../a.png", false},
		{"sub/../../a.png", false},
		{string(filepath.Separator) + "etc" + string(filepath.Separator) + "passwd", false},
	}
	for _, tc := range tcs {
		if got := isPathAllowed(tc.Path); got != tc.Want {
			t.Errorf("isPathAllowed(%q)=%v; want %v", tc.Path, got, tc.Want)
		}
	}
}

func TestMaterializeAll(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	ins := []Promise{
		func() (*img.Image, error) { return img.NewImage(1, 1, 1), nil },
		func() (*img.Image, error) { return nil, errA },
		func() (*img.Image, error) { return img.NewImage(2, 1, 1), nil },
		func() (*img.Image, error) { return nil, errB },
	}
	outs, err := MaterializeAll(ins, 3, false)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	require.Len(t, outs, 2)
	assert.Equal(t, 1, outs[0].Width)
	assert.Equal(t, 2, outs[1].Width)

	outs, err = MaterializeAll(ins[:1], 1, true)
	assert.NoError(t, err)
	assert.Empty(t, outs)
}

func TestRemoveNils(t *testing.T) {
	a, b := img.NewImage(1, 1, 1), img.NewImage(2, 2, 1)
	fs := []*img.Image{nil, a, nil, b, nil}
	got := RemoveNils(fs)
	assert.Equal(t, []*img.Image{a, b}, got)
	assert.Nil(t, fs[4])
}

func TestSequenceJSON(t *testing.T) {
	seq := NewOpSequence(
		NewOpLoadMany([]string{"noisy*.png"}),
		NewOpForEach(NewOpDenoise("laplace", 12, 0)),
		NewOpDiff("clean.png", "diff%d.png", 8),
		NewOpSave("out%d.tif", 90),
	)
	bs, err := json.Marshal(seq)
	require.NoError(t, err)

	var got OpSequence
	require.NoError(t, json.Unmarshal(bs, &got))
	require.Len(t, got.Steps, 4)
	assert.Nil(t, got.StepsRaw)

	assert.Equal(t, []string{"noisy*.png"}, got.Steps[0].(*OpLoadMany).FilePatterns)
	forEach := got.Steps[1].(*OpForEach)
	den := forEach.Operation.(*OpDenoise)
	assert.Equal(t, "laplace", den.Model)
	assert.Equal(t, 12.0, den.Sigma)
	assert.NotNil(t, den.OpUnaryBase.Apply)
	diff := got.Steps[2].(*OpDiff)
	assert.Equal(t, "clean.png", diff.Reference)
	assert.Equal(t, 8.0, diff.Scale)
	save := got.Steps[3].(*OpSave)
	assert.Equal(t, "out%d.tif", save.FilePattern)
	assert.Equal(t, 90, save.Quality)

	bs2, err := json.Marshal(&got)
	require.NoError(t, err)
	assert.JSONEq(t, string(bs), string(bs2))

	err = json.Unmarshal([]byte(`{"type":"seq","active":true,"steps":[{"type":"sharpen","active":true}]}`), &OpSequence{})
	assert.ErrorContains(t, err, "unknown operator type 'sharpen'")
}

func TestPipelineNoiseDenoiseDiffSave(t *testing.T) {
	t.Chdir(t.TempDir())
	writeSquares(t, "clean.png", true)

	var log bytes.Buffer
	c := testContext(&log)
	c.RestrictPaths = true
	seq := NewOpSequence(
		NewOpLoad(7, "clean.png"),
		NewOpNoise("gaussian", 20, 42),
		NewOpDenoise("gaussian", 20, 0),
		NewOpDiff("clean.png", "diff.png", 4),
		NewOpSave("out%d.png", img.DefaultJPEGQuality),
	)
	promises, err := seq.MakePromises(nil, c)
	require.NoError(t, err)
	outs, err := MaterializeAll(promises, c.MaxThreads, false)
	require.NoError(t, err, log.String())
	require.Len(t, outs, 1)

	out := outs[0]
	assert.Equal(t, 7, out.ID)
	assert.Equal(t, 1, out.NumChannels, "grayscale input stays a single channel")
	_, err = os.Stat("out7.png")
	assert.NoError(t, err)
	_, err = os.Stat("diff.png")
	assert.NoError(t, err)

	saved, err := img.NewImageFromFile("out7.png", 0)
	require.NoError(t, err)
	assert.True(t, saved.IsGrayscale())

	text := log.String()
	assert.Contains(t, text, "Tuning lambda...")
	assert.Contains(t, text, "7: Distance to reference clean.png")
}

func TestDenoiseColorFixedLambda(t *testing.T) {
	t.Chdir(t.TempDir())
	writeSquares(t, "in.png", false)

	var log bytes.Buffer
	c := testContext(&log)
	f, err := NewOpLoad(0, "in.png").Apply(nil, c)
	require.NoError(t, err)
	u, err := NewOpDenoise("poisson", 0, 30).Apply(f, c)
	require.NoError(t, err)
	assert.Equal(t, 3, u.NumChannels)
	assert.NotContains(t, log.String(), "Tuning lambda")
	assert.Contains(t, log.String(), "with lambda 30.0000 in 2 solver calls")
}

func TestOperatorErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	var log bytes.Buffer
	c := testContext(&log)
	c.RestrictPaths = true

	_, err := NewOpLoad(0, "../secret.png").MakePromises(nil, c)
	assert.ErrorIs(t, err, fault.ErrIO)

	_, err = NewOpLoad(0, "missing.png").Apply(nil, c)
	assert.ErrorIs(t, err, fault.ErrIO)

	_, err = NewOpLoadMany([]string{"*.png"}).MakePromises(nil, c)
	assert.ErrorIs(t, err, fault.ErrIO)

	f := img.NewImage(4, 4, 1)
	_, err = NewOpDenoise("uniform", 10, 0).Apply(f, c)
	assert.ErrorIs(t, err, fault.ErrUnknownModel)

	_, err = NewOpDenoise("gaussian", 0, 0).Apply(f, c)
	assert.ErrorIs(t, err, fault.ErrInvalidParameter)

	c.WorkMemoryMB = 1
	_, err = NewOpDenoise("gaussian", 10, 0).Apply(img.NewImage(1000, 1000, 1), c)
	assert.ErrorIs(t, err, fault.ErrAllocation)

	_, err = NewOpSave("out.xyz", img.DefaultJPEGQuality).Apply(f, c)
	assert.ErrorIs(t, err, fault.ErrInvalidParameter)
	entries, _ := os.ReadDir(".")
	assert.Empty(t, entries, "failed save leaves no file")
}

func TestAutoSigma(t *testing.T) {
	clean := img.NewImage(64, 64, 1)
	for i := range clean.Data {
		clean.Data[i] = 0.5
	}
	var log bytes.Buffer
	c := testContext(&log)
	noisy, err := NewOpNoise("gaussian", 10, 3).Apply(clean, c)
	require.NoError(t, err)

	op := NewOpDenoise("gaussian", 0, 0)
	op.AutoSigma = true
	_, err = op.Apply(noisy, c)
	require.NoError(t, err)

	var est float64
	for _, line := range strings.Split(log.String(), "\n") {
		if strings.Contains(line, "Estimated noise level") {
			_, err = fmt.Sscanf(line, "0: Estimated noise level %f", &est)
			require.NoError(t, err)
		}
	}
	assert.InEpsilon(t, 10.0, est, 0.15)
}

func TestDenoiseGrayscaleRGB(t *testing.T) {
	f := img.NewImage(16, 16, 3)
	for i := 0; i < f.Pixels(); i++ {
		v := float64(i%5) / 5
		f.Data[i], f.Data[i+f.Pixels()], f.Data[i+2*f.Pixels()] = v, v, v
	}
	var log bytes.Buffer
	c := testContext(&log)
	u, err := NewOpDenoise("gaussian", 15, 0).Apply(f, c)
	require.NoError(t, err)
	assert.Equal(t, 1, u.NumChannels)
	assert.Len(t, u.Data, 256)
	assert.Contains(t, log.String(), "0: Image is grayscale")
}

func TestBadOutputFailsBeforeDenoising(t *testing.T) {
	t.Chdir(t.TempDir())
	writeSquares(t, "in.png", true)

	tests := []struct {
		name string
		last Operator
	}{
		{"unknown suffix", NewOpSave("out.xyz", img.DefaultJPEGQuality)},
		{"quality zero", NewOpSave("out.jpg", 0)},
		{"quality above range", NewOpSave("out.jpg", 101)},
		{"diff suffix", NewOpDiff("in.png", "diff.xyz", 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log bytes.Buffer
			c := testContext(&log)
			seq := NewOpSequence(NewOpLoad(0, "in.png"), NewOpDenoise("gaussian", 0, 10), tt.last)
			_, err := seq.MakePromises(nil, c)
			assert.ErrorIs(t, err, fault.ErrInvalidParameter)
			assert.Empty(t, log.String(), "nothing loaded or denoised")
		})
	}
}
