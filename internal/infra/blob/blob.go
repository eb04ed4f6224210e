// Package blob selects a blob Store backend for export artifacts. The fs
// driver is the default; memory serves tests and s3 talks to AWS or MinIO.
package blob

import (
	"context"
	"fmt"

	"udesign/internal/infra/blob/core"
	"udesign/internal/infra/blob/fs"
	"udesign/internal/infra/blob/memory"
	"udesign/internal/infra/blob/s3"
)

// Aliases so callers outside internal/infra need only this package.
type (
	Driver           = core.Driver
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Info             = core.Info
	Store            = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrUnsupported mirrors core.ErrUnsupported for errors.Is matching.
var ErrUnsupported = core.ErrUnsupported

// Options carries resolved backend settings. Which fields apply depends on
// the driver.
type Options struct {
	Root      string // fs: directory root
	Bucket    string // s3
	Region    string // s3
	Endpoint  string // s3: custom endpoint (MinIO)
	PathStyle bool   // s3
}

// Open constructs the Store for driver. An empty driver selects fs.
func Open(ctx context.Context, driver Driver, opts Options) (Store, error) {
	switch driver {
	case DriverFilesystem, "":
		return fs.New(opts.Root)
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		return s3.New(ctx, s3.Config{
			Region:    opts.Region,
			Bucket:    opts.Bucket,
			Endpoint:  opts.Endpoint,
			PathStyle: opts.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
