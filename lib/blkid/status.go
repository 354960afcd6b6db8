// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import "errors"

// StepResult is returned by DoProbe/DoSafeProbe/DoFullProbe to report
// what happened on a single controller step.
type StepResult int

const (
	// StepHit means a chain produced a result; its values are in the
	// probe's value store.
	StepHit StepResult = iota
	// StepNothing means every remaining chain was exhausted without a hit.
	StepNothing
	// StepAmbivalent means a safe-probe saw more than one non-tolerant
	// identifier claim the device; that chain's values were discarded.
	StepAmbivalent
)

func (r StepResult) String() string {
	switch r {
	case StepHit:
		return "hit"
	case StepNothing:
		return "nothing"
	case StepAmbivalent:
		return "ambivalent"
	default:
		return "unknown"
	}
}

// ReadStatus distinguishes a benign short/out-of-range read (common at
// the tail of optical media and truncated images) from a real I/O error.
type ReadStatus int

const (
	ReadOK ReadStatus = iota
	ReadEndOfArea
	ReadInvalid
)

// ErrNoSuchDevice is returned by operations that require a bound device
// when none has been bound yet.
var ErrNoSuchDevice = errors.New("blkid: no device bound")

// ErrAmbivalent is returned by DoSafeProbe callers that treat ambivalence
// as an error rather than inspecting the StepResult.
var ErrAmbivalent = errors.New("blkid: ambivalent probe result")

// ErrNotWipeable is returned by DoWipe when the current chain has no
// recorded magic location to erase.
var ErrNotWipeable = errors.New("blkid: nothing to wipe at current position")
