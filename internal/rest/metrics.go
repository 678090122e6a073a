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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// jobsTotal counts API jobs by endpoint and result
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvdenoise_jobs_total",
		Help: "Total API jobs by endpoint and result",
	}, []string{"endpoint", "result"})

	// jobDuration tracks job latency including image I/O
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tvdenoise_job_duration_seconds",
		Help:    "API job duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"endpoint"})
)

// Records the outcome of a job started at the given time
func observeJob(endpoint string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobsTotal.WithLabelValues(endpoint, result).Inc()
	jobDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func metricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
