package llm

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one server-sent event: an optional event name and the payload
// of its data line.
type sseEvent struct {
	name string
	data string
}

// doneSentinel terminates both providers' streams.
const doneSentinel = "[DONE]"

// sseScanner reads SSE events incrementally off the raw byte stream. The
// underlying bufio.Scanner holds partial lines between network reads, so a
// data line split across reads is only surfaced once complete.
type sseScanner struct {
	scanner *bufio.Scanner
	name    string
}

// maxSSELineSize bounds a single SSE line. Completed events carry the whole
// unified answer in one line, so the default scanner buffer is too small.
const maxSSELineSize = 10 * 1024 * 1024

func newSSEScanner(r io.Reader) *sseScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxSSELineSize)

	return &sseScanner{scanner: scanner}
}

// Next returns the next data-bearing event, io.EOF at end of stream, or the
// read error. Lines that are neither event nor data fields are skipped.
func (s *sseScanner) Next() (*sseEvent, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			// Event boundary; a pending event name does not outlive it.
			s.name = ""
			continue
		}

		if name, ok := strings.CutPrefix(line, "event:"); ok {
			s.name = strings.TrimSpace(name)
			continue
		}

		if data, ok := strings.CutPrefix(line, "data:"); ok {
			event := &sseEvent{name: s.name, data: strings.TrimSpace(data)}
			s.name = ""

			return event, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, io.EOF
}
