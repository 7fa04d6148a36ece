package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/termset-miner/pkg/metrics"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression names accepted by NewFile.
const (
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
	CompressionNone = "none"
)

// flusher is implemented by both gzip.Writer and zstd.Encoder.
type flusher interface {
	io.WriteCloser
	Flush() error
}

// File appends one line per pattern to a compressed stream:
//
//	<count>\t<term 1>\t<term 2>...
//
// EndLevel flushes the buffered and compressed state to the underlying file
// so a partial run is readable.
type File struct {
	path    string
	f       *os.File
	enc     flusher
	buf     *bufio.Writer
	line    []byte
	written int
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFile creates (or truncates) path and wraps it with the named
// compression.
func NewFile(path, compression string, m *metrics.Metrics) (*File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}
	fs := &File{
		path:    path,
		f:       f,
		metrics: m,
		logger:  slog.Default().With("component", "file-sink", "path", path),
	}
	var w io.Writer = f
	switch compression {
	case CompressionGzip:
		fs.enc = gzip.NewWriter(f)
		w = fs.enc
	case CompressionZstd:
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		fs.enc = enc
		w = enc
	case CompressionNone:
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}
	fs.buf = bufio.NewWriterSize(w, 64*1024)
	return fs, nil
}

func (s *File) Name() string { return "file" }

// Emit writes one line for p.
func (s *File) Emit(_ context.Context, p Pattern) error {
	s.line = strconv.AppendInt(s.line[:0], int64(p.Count), 10)
	for _, term := range p.Terms {
		s.line = append(s.line, '\t')
		s.line = append(s.line, term...)
	}
	s.line = append(s.line, '\n')
	if _, err := s.buf.Write(s.line); err != nil {
		return fmt.Errorf("writing pattern: %w", err)
	}
	s.written++
	return nil
}

func (s *File) EndLevel(_ context.Context, level int) error {
	if err := s.flush(); err != nil {
		return fmt.Errorf("flushing level %d: %w", level, err)
	}
	s.metrics.SinkWrite(s.Name(), s.written)
	s.logger.Debug("level flushed", "level", level, "patterns", s.written)
	s.written = 0
	return nil
}

func (s *File) flush() error {
	if err := s.buf.Flush(); err != nil {
		return err
	}
	if s.enc != nil {
		if err := s.enc.Flush(); err != nil {
			return err
		}
	}
	return s.f.Sync()
}

func (s *File) Close() error {
	if err := s.buf.Flush(); err != nil {
		s.f.Close()
		return fmt.Errorf("flushing output: %w", err)
	}
	if s.enc != nil {
		if err := s.enc.Close(); err != nil {
			s.f.Close()
			return fmt.Errorf("closing encoder: %w", err)
		}
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	return nil
}

// OpenReader opens a result file written by File for reading.
func OpenReader(path, compression string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch compression {
	case CompressionGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return &readCloser{Reader: zr, close: func() error { zr.Close(); return f.Close() }}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		return &readCloser{Reader: dec, close: func() error { dec.Close(); return f.Close() }}, nil
	default:
		return f, nil
	}
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }
