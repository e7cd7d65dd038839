// Copyright 2021 The bit Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cdb

import (
	"io"
	"log/slog"
)

// BuilderOption configures a Builder. See WithBuilderLogger.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	logger   *slog.Logger
	tempPath string
}

// WithBuilderLogger sets an optional logger the builder uses for progress
// updates during Finish. If not provided, no logging output is produced.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(o *builderOptions) {
		o.logger = logger
	}
}

// WithTempPath pins the builder's scratch file to an explicit path instead
// of the default sibling-of-final-path temp file, matching the two
// explicit paths (final, temp) the format's builder contract describes.
func WithTempPath(path string) BuilderOption {
	return func(o *builderOptions) {
		o.tempPath = path
	}
}

func defaultBuilderOptions() builderOptions {
	return builderOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// ReaderOption configures a Reader. See WithoutMmap.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	useMmap bool
}

// WithoutMmap forces Open to use plain seek/read file I/O instead of
// memory-mapping the file. Useful on filesystems or platforms where
// mmap isn't available or desired.
func WithoutMmap() ReaderOption {
	return func(o *readerOptions) {
		o.useMmap = false
	}
}

func defaultReaderOptions() readerOptions {
	return readerOptions{useMmap: true}
}
