package player

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-soundnode/pkg/source"
)

// Sentinel errors for common conditions.
var (
	// ErrBusy is returned when a session is already active.
	ErrBusy = errors.New("player: session already active")

	// ErrNoSession is returned by upload calls when no upload is active.
	ErrNoSession = errors.New("player: no active session")

	// ErrStopTimeout is returned when a session does not wind down in time.
	ErrStopTimeout = errors.New("player: stop timed out")

	// ErrStopped is returned when Stop lands while a session is still starting.
	ErrStopped = errors.New("player: stopped during start")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("player: controller closed")

	// ErrInvalidArgument is returned for out-of-range parameters.
	ErrInvalidArgument = errors.New("player: invalid argument")

	// ErrNoMedia is returned when file playback is requested without a media root.
	ErrNoMedia = errors.New("player: no media filesystem")

	// ErrNotDirectory is returned when a random-play target is a file.
	ErrNotDirectory = errors.New("player: not a directory")

	// ErrNoMatchingFiles is returned when a random-play target has no .wav entries.
	ErrNoMatchingFiles = errors.New("player: no matching files")

	// ErrPoolExhausted is returned when the buffer pool cannot satisfy a request.
	ErrPoolExhausted = errors.New("player: buffer pool exhausted")

	// ErrDoubleRelease is returned when a buffer is released twice.
	ErrDoubleRelease = errors.New("player: buffer released twice")
)

// LoadError reports a failure before playback started. No hardware was
// touched.
type LoadError struct {
	Kind source.Kind
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("player: load %s %q: %v", e.Kind, e.Name, e.Err)
	}
	return fmt.Sprintf("player: load %s: %v", e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// WriteError reports a chunk the sink rejected or timed out on. Playback
// continues after a WriteError; it is logged, not returned.
type WriteError struct {
	Session  string
	Accepted int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("player: sink write (accepted %d): %v", e.Accepted, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// DirectoryError reports a random-play directory that cannot be used.
type DirectoryError struct {
	Dir string
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("player: directory %q: %v", e.Dir, e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// IsLoadError reports whether err is a LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// IsDirectoryError reports whether err is a DirectoryError.
func IsDirectoryError(err error) bool {
	var de *DirectoryError
	return errors.As(err, &de)
}
