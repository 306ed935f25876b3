package buildsys

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
)

const maxCapturedOutput = 64 * 1024

// outputCapture forwards process output line by line to a logger and keeps the tail of it
// around for error reports.
type outputCapture struct {
	logger  *zerolog.Logger
	lock    sync.Mutex
	pending []byte
	tail    []byte
}

func newOutputCapture(logger *zerolog.Logger) *outputCapture {
	return &outputCapture{logger: logger}
}

func (c *outputCapture) Write(p []byte) (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.tail = append(c.tail, p...)
	if len(c.tail) > maxCapturedOutput {
		c.tail = c.tail[len(c.tail)-maxCapturedOutput:]
	}

	c.pending = append(c.pending, p...)
	for {
		pos := bytes.IndexByte(c.pending, '\n')
		if pos < 0 {
			break
		}

		c.emit(c.pending[:pos])
		c.pending = c.pending[pos+1:]
	}

	return len(p), nil
}

func (c *outputCapture) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) > 0 {
		c.logger.Info().Msg(string(line))
	}
}

// Flush logs any incomplete last line
func (c *outputCapture) Flush() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.emit(c.pending)
	c.pending = nil
}

// Tail returns the last bytes written to the capture
func (c *outputCapture) Tail() string {
	c.lock.Lock()
	defer c.lock.Unlock()

	return string(bytes.TrimRight(c.tail, "\r\n"))
}
