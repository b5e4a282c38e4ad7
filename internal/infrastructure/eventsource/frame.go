package eventsource

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
)

// maxLineLength bounds a single line of the stream.
const maxLineLength = 1 << 20

var ErrLineTooLong = errors.New("event stream line too long")

// frameReader splits a byte stream into event frames: runs of non-empty
// lines terminated by a blank line. Lines may end in LF, CRLF or CR and are
// normalised to LF.
type frameReader struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(r)}
}

// next returns the next complete frame. A frame cut short by the end of the
// stream is discarded, as the event stream format requires.
func (f *frameReader) next() ([]byte, error) {
	f.buf.Reset()
	for {
		line, err := f.readLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			if f.buf.Len() == 0 {
				continue
			}
			frame := make([]byte, f.buf.Len())
			copy(frame, f.buf.Bytes())
			return frame, nil
		}
		f.buf.Write(line)
		f.buf.WriteByte('\n')
	}
}

func (f *frameReader) readLine() ([]byte, error) {
	var line []byte
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case '\n':
			return line, nil
		case '\r':
			if next, err := f.r.Peek(1); err == nil && next[0] == '\n' {
				_, _ = f.r.ReadByte()
			}
			return line, nil
		}
		if len(line) >= maxLineLength {
			return nil, ErrLineTooLong
		}
		line = append(line, b)
	}
}

// decodeFrame turns one frame into events. Field assembly is left to
// sse.Decode; id and retry are tracked here because the library ignores an
// id on a frame without data and stores retry values in the id field. A
// frame without data lines dispatches nothing.
func (s *Source) decodeFrame(frame []byte) []Event {
	var rest bytes.Buffer
	hasData := false
	for _, line := range bytes.Split(frame, []byte{'\n'}) {
		field, value := splitField(line)
		switch field {
		case "data":
			hasData = true
		case "retry":
			if ms, err := strconv.ParseUint(value, 10, 32); err == nil {
				s.mu.Lock()
				s.retry = time.Duration(ms) * time.Millisecond
				s.mu.Unlock()
			}
			continue
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.mu.Lock()
				s.lastID = value
				s.mu.Unlock()
			}
		}
		rest.Write(line)
		rest.WriteByte('\n')
	}

	if !hasData {
		return nil
	}

	decoded, err := sse.Decode(&rest)
	if err != nil {
		s.logger.Warnf("undecodable frame %q: %v", frame, err)
		return nil
	}

	lastID := s.LastEventID()
	if len(decoded) == 0 {
		// sse.Decode drops an untyped event whose data is empty.
		return []Event{{ID: lastID, Type: DefaultEventType}}
	}
	events := make([]Event, 0, len(decoded))
	for _, ev := range decoded {
		data, _ := ev.Data.(string)
		typ := ev.Event
		if typ == "" {
			typ = DefaultEventType
		}
		events = append(events, Event{ID: lastID, Type: typ, Data: data})
	}
	return events
}

func splitField(line []byte) (string, string) {
	if len(line) == 0 || line[0] == ':' {
		return "", ""
	}
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), ""
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), string(value)
}
