// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blkidcore/blkid/lib/containers"
)

// hintRegistry holds named uint64 values that identifiers consult or
// set to pass information sideways without going through the value
// store.  The canonical example is "session_offset", set by a caller
// that already knows the multisession offset of a CD-ROM track so the
// ISO9660 identifier doesn't have to rediscover it.
type hintRegistry struct {
	order []string
	vals  map[string]uint64
}

func newHintRegistry() *hintRegistry {
	return &hintRegistry{vals: make(map[string]uint64)}
}

// Set records name=val, overwriting any previous value.
func (h *hintRegistry) Set(name string, val uint64) {
	if _, ok := h.vals[name]; !ok {
		h.order = append(h.order, name)
	}
	h.vals[name] = val
}

// SetString parses a "name=value" string, accepting decimal or 0x-hex.
func (h *hintRegistry) SetString(s string) error {
	name, valStr, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("blkid: malformed hint %q, want NAME=value", s)
	}
	val, err := strconv.ParseUint(valStr, 0, 64)
	if err != nil {
		return fmt.Errorf("blkid: malformed hint %q: %w", s, err)
	}
	h.Set(name, val)
	return nil
}

// Get looks up a previously-set hint.
func (h *hintRegistry) Get(name string) containers.Optional[uint64] {
	v, ok := h.vals[name]
	return containers.Optional[uint64]{OK: ok, Val: v}
}

// Reset clears every hint.
func (h *hintRegistry) Reset() {
	h.order = nil
	h.vals = make(map[string]uint64)
}

// Names returns the hint names in the order they were first set.
func (h *hintRegistry) Names() []string {
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}
