package pkg

import (
	"io"

	"go.uber.org/multierr"
)

// MultiWriter fans every Write out to all underlying writers. Unlike
// io.MultiWriter it does not stop on the first failing writer: the rest
// still receive the bytes and the errors come back combined.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (mw *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range mw.writers {
		written, werr := w.Write(p)
		if werr != nil {
			err = multierr.Append(err, werr)
			continue
		}
		n += written
	}
	return n, err
}
