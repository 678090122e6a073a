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

// Package fault defines the error kinds reported by a denoising run.
// Concrete errors wrap one of these, so callers can test with errors.Is.
package fault

import "errors"

var (
	ErrUnknownModel     = errors.New("unknown noise model")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrAllocation       = errors.New("allocation failed")
	ErrIO               = errors.New("I/O failure")
	ErrSolver           = errors.New("solver failure")
)

// Wraps err into the given kind, unless it already is of that kind
func Wrap(kind error, err error) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}
	return &wrapped{kind: kind, err: err}
}

type wrapped struct {
	kind error
	err  error
}

func (w *wrapped) Error() string   { return w.kind.Error() + ": " + w.err.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.kind, w.err} }
