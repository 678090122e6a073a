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

// Package logfile provides the log writer of the command line tool. It writes
// to stdout, and optionally to a file. It does not add prefixes, or force newlines.
package logfile

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Placeholder for a log file name derived from the output file name
const Auto = "%auto"

// A log writer. Safe for concurrent use
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	file   *bufio.Writer
	fileOS *os.File
}

func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Enables logging to file, in addition to the primary output.
// Closes a previously opened log file
func (w *Writer) AlsoToFile(fileName string) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err = w.closeFile(); err != nil {
		return err
	}
	fileOS, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o666)
	if err != nil {
		return err
	}
	w.fileOS, w.file = fileOS, bufio.NewWriter(fileOS)
	return nil
}

func (w *Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n, err = w.out.Write(p); err != nil || w.file == nil {
		return n, err
	}
	return w.file.Write(p)
}

// Flushes and closes the log file, if any
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeFile()
}

func (w *Writer) closeFile() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Flush()
	if cerr := w.fileOS.Close(); err == nil {
		err = cerr
	}
	w.file, w.fileOS = nil, nil
	return err
}

// Resolves a log file name. Auto replaces the suffix of the output file name with .log
func FileName(pattern, output string) string {
	if pattern != Auto {
		return pattern
	}
	if output == "" {
		return ""
	}
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".log"
}
