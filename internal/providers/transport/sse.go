package transport

import (
	"bufio"
	"bytes"
	"io"
	"iter"
)

const maxEventSize = 1 << 20

// DoneMarker terminates OpenAI-style event streams.
const DoneMarker = "[DONE]"

// Events yields the data payload of each server-sent event read from r.
// Multi-line data fields are joined with "\n"; comments and other fields are
// skipped. Iteration stops at EOF or at a DoneMarker payload.
func Events(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

		var data [][]byte
		flush := func() (cont, done bool) {
			if len(data) == 0 {
				return true, false
			}
			payload := bytes.Join(data, []byte("\n"))
			data = data[:0]
			if string(bytes.TrimSpace(payload)) == DoneMarker {
				return false, true
			}
			return yield(payload, nil), false
		}

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				if cont, _ := flush(); !cont {
					return
				}
				continue
			}
			if line[0] == ':' {
				continue
			}
			field, value, _ := bytes.Cut(line, []byte(":"))
			if string(field) != "data" {
				continue
			}
			value = bytes.TrimPrefix(value, []byte(" "))
			data = append(data, bytes.Clone(value))
		}
		if err := scanner.Err(); err != nil {
			yield(nil, err)
			return
		}
		flush()
	}
}
