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

package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/cpuid"
	"github.com/mlnoga/tvdenoise/internal/denoise"
	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/mlnoga/tvdenoise/internal/img"
	"github.com/mlnoga/tvdenoise/internal/noise"
	"github.com/mlnoga/tvdenoise/internal/ops"
	"github.com/mlnoga/tvdenoise/internal/rest"
	"github.com/mlnoga/tvdenoise/internal/stats"
	"github.com/pbnjay/memory"
	"github.com/spf13/cobra"
)

func newNoiseCmd(out io.Writer) *cobra.Command {
	var model string
	var seed uint32
	var quality int
	cmd := &cobra.Command{
		Use:     "noise [flags] <clean> <noisy>",
		Short:   "Add synthetic noise to an image",
		Example: "  tvdenoise noise -n poisson:15 clean.png noisy.png",
		Args:    exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, sigma, err := noise.ParseModelSigma(model)
			if err != nil {
				return err
			}
			if !(sigma > 0) {
				return fmt.Errorf("%w: noise needs a sigma, e.g. -n %v:10", fault.ErrInvalidParameter, m)
			}
			seq := ops.NewOpSequence(
				ops.NewOpLoad(0, args[0]),
				ops.NewOpNoise(m.String(), sigma, seed),
				ops.NewOpSave(args[1], quality),
			)
			return runSequence(seq, out)
		},
	}
	cmd.Flags().StringVarP(&model, "noise", "n", "gaussian:10", "noise `model:sigma`, sigma in [0,255]")
	cmd.Flags().Uint32Var(&seed, "seed", 0, "random seed, 0 for a random one")
	cmd.Flags().IntVarP(&quality, "quality", "q", img.DefaultJPEGQuality, "quality for saving JPEG images (1 to 100)")
	return cmd
}

func newDiffCmd(out io.Writer) *cobra.Command {
	var output string
	var scale float64
	cmd := &cobra.Command{
		Use:     "diff [flags] <image> <reference>",
		Short:   "Compare an image with a reference, reporting RMSE and PSNR",
		Example: "  tvdenoise diff -o diff.png denoised.png clean.png",
		Args:    exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq := ops.NewOpSequence(
				ops.NewOpLoad(0, args[0]),
				ops.NewOpDiff(args[1], output, scale),
			)
			return runSequence(seq, out)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "save a colorized difference image to `file`")
	cmd.Flags().Float64Var(&scale, "scale", 4, "amplification of differences in the difference image")
	return cmd
}

func newEstimateCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <image>",
		Short: "Estimate the noise standard deviation of an image",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := img.NewImageFromFile(args[0], 0)
			if err != nil {
				return fault.Wrap(fault.ErrIO, err)
			}
			if f.IsGrayscale() {
				f.ToMono()
			}
			for ch := 0; ch < f.NumChannels; ch++ {
				sigma, err := stats.EstimateNoise(f.Plane(ch), f.Width, f.Height)
				if err != nil {
					fmt.Fprintf(out, "Channel %d: warning: %v\n", ch, err)
				}
				fmt.Fprintf(out, "Channel %d: sigma %.3f\n", ch, denoise.DisplayScale*sigma)
			}
			return nil
		},
	}
}

func newServeCmd(out io.Writer) *cobra.Command {
	var addr, chroot string
	var setuid int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rest.MakeSandbox(chroot, setuid, out); err != nil {
				return err
			}
			return rest.Serve(addr, out)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen on `address`")
	cmd.Flags().StringVar(&chroot, "chroot", "", "change filesystem root to `dir` before serving (requires root)")
	cmd.Flags().IntVar(&setuid, "setuid", -1, "change user ID before serving, -1 to keep")
	return cmd
}

func newVersionCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  exactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(out, "Version %s\n", version)
			fmt.Fprintf(out, "Built with %s for %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "CPU %s, %d physical cores, %d logical cores\n",
				cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
			fmt.Fprintf(out, "Physical memory %d MB\n", memory.TotalMemory()/1024/1024)
		},
	}
}

func newLegalCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "legal",
		Short: "Show license and attribution information",
		Args:  exactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(out, legal)
		},
	}
}

// Runs an operator sequence without inputs, logging to out
func runSequence(seq *ops.OpSequence, out io.Writer) error {
	c := ops.NewContext(out)
	promises, err := seq.MakePromises(nil, c)
	if err != nil {
		return err
	}
	_, err = ops.MaterializeAll(promises, c.MaxThreads, true)
	return err
}
