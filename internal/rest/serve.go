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

package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/tvdenoise/internal/config"
	"github.com/mlnoga/tvdenoise/internal/fault"
	"github.com/mlnoga/tvdenoise/internal/img"
	"github.com/mlnoga/tvdenoise/internal/logfile"
	"github.com/mlnoga/tvdenoise/internal/ops"
)

// Creates the HTTP handler for the API
func NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/denoise", postDenoise)
			v1.POST("/noise", postNoise)
		}
	}
	r.GET("/metrics", metricsHandler())
	return r
}

// Listens and serves the API on the given address, e.g. ":8080"
func Serve(addr string, log io.Writer) error {
	fmt.Fprintf(log, "Serving API on %s\n", addr)
	return NewRouter().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Maps an error kind to a HTTP status code for requests rejected before processing
func statusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrUnknownModel), errors.Is(err, fault.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, fault.ErrIO):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// Runs the pipeline, streaming its log as plain text to the response
func runStreaming(c *gin.Context, endpoint string, args interface{}, seq *ops.OpSequence) {
	start := time.Now()
	logWriter := c.Writer
	ctx := ops.NewContext(logfile.New(logWriter)) // serializes writes of concurrent operators
	ctx.RestrictPaths = true

	promises, err := seq.MakePromises(nil, ctx)
	if err != nil {
		observeJob(endpoint, start, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	logWriter.Header().Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)
	if err = printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}
	_, err = ops.MaterializeAll(promises, ctx.MaxThreads, true)
	observeJob(endpoint, start, err)
	if err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	} else {
		fmt.Fprintf(logWriter, "done\n")
	}
	logWriter.Flush()
}

func postDenoise(c *gin.Context) {
	job := config.DefaultJob()
	if err := c.ShouldBindJSON(&job); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := job.Validate(); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	runStreaming(c, "denoise", job, job.Pipeline())
}

type postNoiseArgs struct {
	Input  string  `json:"input" binding:"required"`
	Output string  `json:"output" binding:"required"`
	Model  string  `json:"model" binding:"required"`
	Sigma  float64 `json:"sigma" binding:"gt=0,lte=255"`
	Seed   uint32  `json:"seed"`
}

func postNoise(c *gin.Context) {
	var args postNoiseArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	seq := ops.NewOpSequence(
		ops.NewOpLoad(0, args.Input),
		ops.NewOpNoise(args.Model, args.Sigma, args.Seed),
		ops.NewOpSave(args.Output, img.DefaultJPEGQuality),
	)
	runStreaming(c, "noise", args, seq)
}
