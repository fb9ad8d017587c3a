package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// File reads a file sequentially from a filesystem.
type File struct {
	fsys fs.FS
	name string

	f   fs.File
	buf []byte
}

// NewFile returns a source for name on fsys.
func NewFile(fsys fs.FS, name string) *File {
	return &File{fsys: fsys, name: name}
}

func (s *File) Kind() Kind { return KindFile }

// Name returns the file name.
func (s *File) Name() string { return s.name }

// Open opens the file. A missing file or a directory is an error.
func (s *File) Open(ctx context.Context, buf []byte) error {
	f, err := s.fsys.Open(s.name)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", s.name, err)
	}
	if info.IsDir() {
		f.Close()
		return fmt.Errorf("open %s: is a directory", s.name)
	}
	s.f = f
	s.buf = buf
	return nil
}

func (s *File) Next(ctx context.Context, max int) ([]byte, error) {
	if s.f == nil {
		return nil, ErrNotOpen
	}
	max = min(max, len(s.buf))
	n, err := s.f.Read(s.buf[:max])
	if n > 0 {
		return s.buf[:n], nil
	}
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	return nil, fmt.Errorf("read %s: %w", s.name, err)
}

func (s *File) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
