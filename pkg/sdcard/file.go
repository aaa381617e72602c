package sdcard

import (
	"bufio"
	"io"
	"os"
	"sync"
)

// File is an open card file read line by line.
type File struct {
	mu   sync.Mutex
	path string
	f    *os.File
	r    *bufio.Reader
	off  int64
	size int64

	latch func(path string, err error) error
}

func openFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{path: path, f: f, r: bufio.NewReader(f), size: fi.Size()}, nil
}

// ReadLine returns the next line without its terminator, cut to at most
// max bytes; the rest of an over-long line is skipped. It returns io.EOF
// once the file is exhausted. Other read errors latch the card error.
func (f *File) ReadLine(max int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return "", io.ErrClosedPipe
	}

	var line []byte
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				if len(line) == 0 {
					return "", io.EOF
				}
				return trimCR(line), nil
			}
			if f.latch != nil {
				return "", f.latch(f.path, err)
			}
			return "", err
		}
		f.off++
		if b == '\n' {
			return trimCR(line), nil
		}
		if len(line) < max {
			line = append(line, b)
		}
	}
}

func trimCR(b []byte) string {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return string(b)
}

// Offset returns the number of bytes consumed so far.
func (f *File) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.off
}

// Size returns the file size at open time.
func (f *File) Size() int64 { return f.size }

// Close releases the file. Closing twice is harmless.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}
