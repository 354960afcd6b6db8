// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package blkid

import (
	"context"

	"github.com/datawire/dlib/dlog"
	"github.com/sirupsen/logrus"
)

// NewDefaultContext attaches a logrus-backed dlog.Logger to ctx at level.
// Callers that already carry their own dlog.Logger have no need for this;
// it exists for the common case of a caller that just wants BindDevice/
// DoProbe's Debug/Warn logging to go somewhere without building a logrus
// tree themselves.
func NewDefaultContext(ctx context.Context, level logrus.Level) context.Context {
	logger := logrus.New()
	logger.SetLevel(level)
	return dlog.WithLogger(ctx, dlog.WrapLogrus(logger))
}
