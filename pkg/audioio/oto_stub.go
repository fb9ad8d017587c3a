//go:build !oto

package audioio

import (
	"errors"
	"log/slog"
)

func newOtoDevice(logger *slog.Logger) (Device, error) {
	return nil, errors.New("oto backend not compiled in (build with -tags oto)")
}

func otoAvailable() bool { return false }
