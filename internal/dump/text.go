package dump

import (
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"go.uber.org/zap"
)

// Compression suffixes that are refused rather than read as plain text.
var unsupportedSuffixes = map[string]bool{
	".xz":   true,
	".lzma": true,
	".z":    true,
	".zip":  true,
	".7z":   true,
}

// OpenTextFile opens an already-decoded dump, decompressing .gz, .zst, .bz2
// and .lz4.
func OpenTextFile(path string, maxLineBytes int, logger *zap.Logger) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStreamUnavailable, err)
	}

	rc, err := decompress(f, path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrStreamUnavailable, path, err)
	}

	logger.Info("reading decoded dump file", zap.String("path", path))
	return newScannerSource(rc, maxLineBytes), nil
}

func decompress(f *os.File, path string) (io.ReadCloser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ext == ".zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return &stackedCloser{Reader: dec, closers: []io.Closer{zstdCloser{dec}, f}}, nil
	case ext == ".bz2":
		return &stackedCloser{Reader: bzip2.NewReader(f), closers: []io.Closer{f}}, nil
	case ext == ".lz4":
		return &stackedCloser{Reader: lz4.NewReader(f), closers: []io.Closer{f}}, nil
	case unsupportedSuffixes[ext]:
		return nil, fmt.Errorf("unsupported compression %s", ext)
	default:
		return f, nil
	}
}

// stackedCloser closes a decompressor and then the file under it.
type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}
