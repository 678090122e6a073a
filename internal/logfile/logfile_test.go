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

package logfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestWriterTee(t *testing.T) {
	var out bytes.Buffer
	w := New(&out)
	fmt.Fprintf(w, "before\n")

	fileName := filepath.Join(t.TempDir(), "run.log")
	if err := w.AlsoToFile(fileName); err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(w, "%d: after\n", 3)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(w, "closed\n")

	if got, want := out.String(), "before\n3: after\nclosed\n"; got != want {
		t.Errorf("stdout got %q; want %q", got, want)
	}
	bs, err := os.ReadFile(fileName)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(bs), "3: after\n"; got != want {
		t.Errorf("log file got %q; want %q", got, want)
	}
}

func TestFileName(t *testing.T) {
	tcs := []struct {
		Pattern, Output, Want string
	}{
		{Auto, "denoised.png", "denoised.log"},
		{Auto, "dir/out.tar.gz", "dir/out.tar.log"},
		{Auto, "", ""},
		{"custom.txt", "denoised.png", "custom.txt"},
		{"", "denoised.png", ""},
	}
	for _, tc := range tcs {
		if got := FileName(tc.Pattern, tc.Output); got != tc.Want {
			t.Errorf("FileName(%q, %q)=%q; want %q", tc.Pattern, tc.Output, got, tc.Want)
		}
	}
}
