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
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"time"

	"github.com/mlnoga/tvdenoise/internal/config"
	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/mlnoga/tvdenoise/internal/img"
	"github.com/mlnoga/tvdenoise/internal/logfile"
	"github.com/mlnoga/tvdenoise/internal/noise"
	"github.com/mlnoga/tvdenoise/internal/ops"
	"github.com/spf13/cobra"
)

const version = "0.3.0"

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2 // invalid command line, or nothing to do
)

// Marks errors in the command line, as opposed to failures while processing
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

var errNothingToDo = errors.New("nothing to do")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// Executes the command line and returns the process exit code
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	var uerr usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errNothingToDo):
		return exitUsage
	case errors.As(err, &uerr):
		fmt.Fprintf(stderr, "Error: %s\nRun 'tvdenoise --help' for usage.\n", err.Error())
		return exitUsage
	}
	fmt.Fprintf(stderr, "Error: %s\n", err.Error())
	return exitFailure
}

// Returns a positional argument check which reports a usage error
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

type rootOptions struct {
	noise      string
	lambda     float64
	autoSigma  bool
	quality    int
	configFile string
	log        string
	reference  string
	diff       string
	threads    int
	cpuprofile string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := rootOptions{}
	root := &cobra.Command{
		Use:   "tvdenoise [flags] <noisy> <denoised>",
		Short: "Total variation regularized denoising",
		Long: `tvdenoise Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Run 'tvdenoise legal' for details.

Denoises an image with total variation regularization. Either lambda (the
fidelity strength) or sigma (the noise standard deviation) should be given.
If sigma is given, lambda is calibrated so that the distance between the
noisy and the denoised image matches sigma.

Noise models:
  gaussian  Additive white Gaussian noise, Y[n] ~ Normal(X[n], sigma^2)
  laplace   Laplace noise, Y[n] ~ Laplace(X[n], sigma/sqrt(2))
  poisson   Poisson noise, Y[n] ~ Poisson(X[n]/a) a, where a = 255 sigma^2 / (mean X)`,
		Example:       "  tvdenoise -n laplace:10 noisy.bmp denoised.bmp",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 || len(args) > 2 {
				return usageError{fmt.Errorf("expected <noisy> <denoised>, got %d arguments", len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.configFile == "" {
				cmd.Help()
				return errNothingToDo
			}
			return runDenoise(cmd, args, &opts, out)
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error { return usageError{err} })

	f := root.Flags()
	f.StringVarP(&opts.noise, "noise", "n", "gaussian", "noise `model[:sigma]`, sigma in [0,255] selects lambda automatically")
	f.Float64VarP(&opts.lambda, "lambda", "l", 0, "fidelity strength, if sigma is not given")
	f.BoolVar(&opts.autoSigma, "auto-sigma", false, "estimate sigma from the noisy image if neither sigma nor lambda is given")
	f.IntVarP(&opts.quality, "quality", "q", img.DefaultJPEGQuality, "quality for saving JPEG images (1 to 100)")
	f.StringVar(&opts.configFile, "config", "", "read the job from a YAML or JSON `file`, command line settings take precedence")
	f.StringVar(&opts.log, "log", "", "also save log output to `file`. %auto replaces the suffix of the output file with .log")
	f.StringVar(&opts.reference, "reference", "", "compare the result with the clean reference image in `file`")
	f.StringVar(&opts.diff, "diff", "", "save a colorized difference to the reference image to `file`")
	f.IntVarP(&opts.threads, "threads", "t", 0, "number of solver threads, 0 for all CPUs")
	f.StringVar(&opts.cpuprofile, "cpuprofile", "", "write cpu profile to `file`")

	root.AddCommand(newNoiseCmd(out), newDiffCmd(out), newEstimateCmd(out), newServeCmd(out),
		newVersionCmd(out), newLegalCmd(out))
	return root
}

// Assembles the job from the config file and the command line
func jobFromFlags(cmd *cobra.Command, args []string, opts *rootOptions) (job config.Job, err error) {
	job = config.DefaultJob()
	if opts.configFile != "" {
		if job, err = config.LoadJob(opts.configFile); err != nil {
			return job, err
		}
	}
	if len(args) == 2 {
		job.Input, job.Output = args[0], args[1]
	}

	// a sigma or lambda from the command line replaces the other from the config file
	flags := cmd.Flags()
	if flags.Changed("noise") || opts.configFile == "" {
		m, sigma, err := noise.ParseModelSigma(opts.noise)
		if err != nil {
			return job, err
		}
		job.Model = m.String()
		if sigma > 0 || opts.configFile == "" {
			job.Sigma = sigma
		}
		if sigma > 0 && !flags.Changed("lambda") {
			job.Lambda = 0
		}
	}
	if flags.Changed("lambda") {
		if !(opts.lambda > 0) {
			return job, fmt.Errorf("%w: lambda must be positive", fault.ErrInvalidParameter)
		}
		job.Lambda = opts.lambda
		if !flags.Changed("noise") {
			job.Sigma, job.AutoSigma = 0, false
		}
	}
	if flags.Changed("auto-sigma") {
		job.AutoSigma = opts.autoSigma
	}
	if flags.Changed("quality") {
		job.Quality = opts.quality
	}
	if flags.Changed("reference") {
		job.Reference = opts.reference
	}
	if flags.Changed("diff") {
		job.DiffOutput = opts.diff
	}
	return job, job.Validate()
}

func runDenoise(cmd *cobra.Command, args []string, opts *rootOptions, out io.Writer) error {
	start := time.Now()
	job, err := jobFromFlags(cmd, args, opts)
	if err != nil {
		return err
	}

	log := logfile.New(out)
	defer log.Close()
	if name := logfile.FileName(opts.log, job.Output); name != "" {
		if err = log.AlsoToFile(name); err != nil {
			return fault.Wrap(fault.ErrIO, err)
		}
	}

	if opts.cpuprofile != "" {
		f, err := os.Create(opts.cpuprofile)
		if err != nil {
			return fault.Wrap(fault.ErrIO, err)
		}
		defer f.Close()
		if err = pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	c := ops.NewContext(log)
	if opts.threads > 0 {
		c.MaxThreads = opts.threads
		c.Solver = nil // created per operator with MaxThreads
	}
	promises, err := job.Pipeline().MakePromises(nil, c)
	if err != nil {
		return err
	}
	if _, err = ops.MaterializeAll(promises, c.MaxThreads, true); err != nil {
		return err
	}
	fmt.Fprintf(log, "Done after %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}
