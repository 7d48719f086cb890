package process

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// LineReader delivers each line of a stream to a callback until the stream
// ends or Stop is called.
type LineReader struct {
	r       io.ReadCloser
	onLine  func(string)
	onError func(error)
	stopped atomic.Bool
	done    chan struct{}
}

// ReadLines starts a goroutine reading r line by line. onError is called
// once for a read failure other than EOF; either callback may be nil.
func ReadLines(r io.ReadCloser, onLine func(string), onError func(error)) *LineReader {
	lr := &LineReader{r: r, onLine: onLine, onError: onError, done: make(chan struct{})}
	go lr.loop()
	return lr
}

func (lr *LineReader) loop() {
	defer close(lr.done)
	br := bufio.NewReader(lr.r)
	for {
		line, err := br.ReadString('\n')
		if lr.stopped.Load() {
			return
		}
		if line != "" && lr.onLine != nil {
			lr.onLine(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && lr.onError != nil {
				lr.onError(err)
			}
			return
		}
	}
}

// Stop suppresses further callbacks and closes the stream without waiting
// for a read in progress.
func (lr *LineReader) Stop() {
	if lr.stopped.Swap(true) {
		return
	}
	lr.r.Close()
}

// Done is closed when the goroutine exits.
func (lr *LineReader) Done() <-chan struct{} { return lr.done }
