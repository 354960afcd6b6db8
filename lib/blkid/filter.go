// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Filter is a per-chain enable/disable bitmap over that chain's identifier
// array.  Mutating a Filter does not change the chain's scan position: a
// DoProbe sequence in progress resumes after the last identifier it
// tried, while DoSafeProbe and DoFullProbe always start from the first
// entry.
type Filter struct {
	disabled []bool
}

func newFilter(n int) *Filter {
	return &Filter{disabled: make([]bool, n)}
}

func (f *Filter) Disabled(i int) bool {
	if i < 0 || i >= len(f.disabled) {
		return false
	}
	return f.disabled[i]
}

func (f *Filter) Disable(i int) {
	if i >= 0 && i < len(f.disabled) {
		f.disabled[i] = true
	}
}

func (f *Filter) Enable(i int) {
	if i >= 0 && i < len(f.disabled) {
		f.disabled[i] = false
	}
}

func (f *Filter) Invert() {
	for i := range f.disabled {
		f.disabled[i] = !f.disabled[i]
	}
}

func (f *Filter) Clear() {
	for i := range f.disabled {
		f.disabled[i] = false
	}
}

// setByNames rewrites the filter from a list of identifier names.  When
// only is true, exactly the named identifiers are enabled and every
// identifier not named is disabled; when false, only the named
// identifiers are disabled and everything else is enabled.
func (f *Filter) setByNames(idinfos []*Idinfo, names []string, only bool) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	for _, n := range names {
		if !slices.ContainsFunc(idinfos, func(idi *Idinfo) bool { return idi.Name == n }) {
			return fmt.Errorf("blkid: unknown identifier name %q", n)
		}
	}
	for i, idi := range idinfos {
		named := want[idi.Name]
		if only {
			f.disabled[i] = !named
		} else {
			f.disabled[i] = named
		}
	}
	return nil
}
