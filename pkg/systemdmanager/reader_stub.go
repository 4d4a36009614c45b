//go:build !linux

package systemdmanager

import (
	"context"
	"errors"
)

var ErrUnsupported = errors.New("systemdmanager: unsupported OS (linux only)")

type Reader struct{}

func NewReader(ctx context.Context) (*Reader, error) { return nil, ErrUnsupported }

func (r *Reader) Statuses(ctx context.Context, names []string) ([]UnitStatus, error) {
	return nil, ErrUnsupported
}

func (r *Reader) Close() error { return nil }
