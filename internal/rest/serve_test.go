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
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/tvdenoise/internal/img"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	NewRouter().ServeHTTP(w, req)
	return w
}

// Creates a small gradient image in the current directory
func writeInput(t *testing.T, fileName string) {
	t.Helper()
	f := img.NewImage(16, 12, 3)
	for i := range f.Data {
		f.Data[i] = float64(i%16) / 16
	}
	require.NoError(t, f.WriteFile(fileName, img.DefaultJPEGQuality))
}

func TestPing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	w := httptest.NewRecorder()
	NewRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestPostDenoise(t *testing.T) {
	t.Chdir(t.TempDir())
	writeInput(t, "in.png")

	w := post(t, "/api/v1/denoise", `{"input":"in.png","output":"out.jpg","model":"laplace","sigma":10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "Arguments:\n"))
	assert.Contains(t, body, "TV regularized denoising with Laplace noise model")
	assert.True(t, strings.HasSuffix(body, "done\n"), body)
	_, err := os.Stat("out.jpg")
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	m := httptest.NewRecorder()
	NewRouter().ServeHTTP(m, req)
	assert.Equal(t, http.StatusOK, m.Code)
	assert.Contains(t, m.Body.String(), `tvdenoise_jobs_total{endpoint="denoise",result="ok"}`)
}

func TestPostDenoiseRejected(t *testing.T) {
	t.Chdir(t.TempDir())
	writeInput(t, "in.png")

	tcs := []struct {
		Name string
		Body string
		Code int
	}{
		{"malformed", `{"input":`, http.StatusBadRequest},
		{"unknown model", `{"input":"in.png","output":"o.png","model":"uniform","sigma":10}`, http.StatusBadRequest},
		{"sigma and lambda", `{"input":"in.png","output":"o.png","sigma":10,"lambda":3}`, http.StatusBadRequest},
		{"quality zero", `{"input":"in.png","output":"o.jpg","sigma":10,"quality":0}`, http.StatusBadRequest},
		{"unknown suffix", `{"input":"in.png","output":"o.xyz","sigma":10}`, http.StatusBadRequest},
		{"no output", `{"input":"in.png","sigma":10}`, http.StatusBadRequest},
		{"outside tree", `{"input":"../in.png","output":"o.png","sigma":10}`, http.StatusForbidden},
		{"absolute path", `{"input":"/etc/passwd","output":"o.png","sigma":10}`, http.StatusForbidden},
	}
	for _, tc := range tcs {
		w := post(t, "/api/v1/denoise", tc.Body)
		assert.Equal(t, tc.Code, w.Code, tc.Name)
		assert.Contains(t, w.Body.String(), `"error"`, tc.Name)
	}
	_, err := os.Stat("o.png")
	assert.True(t, os.IsNotExist(err))
}

func TestPostNoise(t *testing.T) {
	t.Chdir(t.TempDir())
	writeInput(t, "clean.png")

	w := post(t, "/api/v1/noise", `{"input":"clean.png","output":"noisy.png","model":"poisson","sigma":15,"seed":7}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Added poisson noise")
	_, err := os.Stat("noisy.png")
	assert.NoError(t, err)

	w = post(t, "/api/v1/noise", `{"input":"clean.png","output":"noisy.png","model":"gaussian","sigma":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
