// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import "fmt"

// Value is a single NAME=value pair contributed by an identifier, tagged
// with the chain that produced it so a later StepBack or chain reset can
// find and discard exactly the right entries.
type Value struct {
	Name  string
	chain ChainKind
	// raw always carries one extra trailing NUL past the declared
	// payload, so Bytes() can be handed to C-string-shaped consumers
	// without a copy, mirroring how libblkid stores its values.
	raw []byte
}

// Bytes returns the declared payload, excluding the defensive trailing NUL.
func (v Value) Bytes() []byte {
	if len(v.raw) == 0 {
		return nil
	}
	return v.raw[:len(v.raw)-1]
}

// String returns the payload interpreted as text.
func (v Value) String() string {
	return string(v.Bytes())
}

func newValue(chain ChainKind, name string, data []byte) Value {
	raw := make([]byte, len(data)+1)
	copy(raw, data)
	return Value{Name: name, chain: chain, raw: raw}
}

// valueStore is the ordered list of Values accumulated across a probe's
// lifetime.  Entries are append-only during a single identifier's probe
// callback; a rejected hit is rolled back by truncating to a mark, and
// StepBack and chain resets drop a chain's entries with ResetChain.
type valueStore struct {
	vals []Value
}

func newValueStore() *valueStore {
	return &valueStore{}
}

// mark returns the current length, to be passed to truncate or since
// later to scope a rollback to exactly the entries added since.
func (s *valueStore) mark() int {
	return len(s.vals)
}

// truncate discards every value added since mark.
func (s *valueStore) truncate(mark int) {
	s.vals = s.vals[:mark]
}

// since returns the values added after mark, without copying.
func (s *valueStore) since(mark int) []Value {
	return s.vals[mark:]
}

func (s *valueStore) append(chain ChainKind, name string, data []byte) {
	s.vals = append(s.vals, newValue(chain, name, data))
}

func (s *valueStore) appendf(chain ChainKind, name, format string, args ...any) {
	s.append(chain, name, []byte(fmt.Sprintf(format, args...)))
}

// appendValues re-attaches a previously detached slice of values.
func (s *valueStore) appendValues(vs ...Value) {
	s.vals = append(s.vals, vs...)
}

// Lookup finds the most recently appended value with the given name.
func (s *valueStore) Lookup(name string) (Value, bool) {
	for i := len(s.vals) - 1; i >= 0; i-- {
		if s.vals[i].Name == name {
			return s.vals[i], true
		}
	}
	return Value{}, false
}

// LookupChain finds the most recent value with the given name that was
// produced by chain.
func (s *valueStore) LookupChain(chain ChainKind, name string) (Value, bool) {
	for i := len(s.vals) - 1; i >= 0; i-- {
		if s.vals[i].chain == chain && s.vals[i].Name == name {
			return s.vals[i], true
		}
	}
	return Value{}, false
}

// All returns every accumulated value, in insertion order.
func (s *valueStore) All() []Value {
	out := make([]Value, len(s.vals))
	copy(out, s.vals)
	return out
}

// ResetChain discards every value attributed to chain, used when a chain
// is reset to its initial state (after an ambivalent safe-probe, or when
// StepBack rewinds the chain).
func (s *valueStore) ResetChain(chain ChainKind) {
	kept := s.vals[:0]
	for _, v := range s.vals {
		if v.chain != chain {
			kept = append(kept, v)
		}
	}
	s.vals = kept
}
