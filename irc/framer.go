package irc

import (
	"bytes"
)

// maxLineLen is the maximum accepted length of a single line, tag data
// included. Lines above this limit are dropped rather than dispatched.
const maxLineLen = 8192 + 1024

// LineFramer splits a raw byte stream into discrete IRC lines.
//
// Input chunks have no alignment guarantee with line boundaries: a line may
// span several chunks, and a chunk may hold several lines. The framer keeps
// the trailing partial line between pushes so that no byte is ever dropped or
// seen twice.
type LineFramer struct {
	carry []byte
}

// Push feeds a chunk of received bytes and returns the complete lines it
// terminated, in receive order, with their "\r\n" (or bare "\n") terminator
// stripped.
func (f *LineFramer) Push(chunk []byte) []string {
	var lines []string

	data := chunk
	if len(f.carry) != 0 {
		data = append(f.carry, chunk...)
	}

	for {
		nlidx := bytes.IndexByte(data, '\n')
		if nlidx < 0 {
			break
		}
		line := data[:nlidx]
		if len(line) != 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		if len(line) != 0 && len(line) <= maxLineLen {
			lines = append(lines, string(line))
		}
		data = data[nlidx+1:]
	}

	// keep the unterminated tail for the next chunk
	if len(data) != 0 {
		f.carry = append(f.carry[:0], data...)
	} else {
		f.carry = f.carry[:0]
	}

	return lines
}

// Close discards any unterminated partial line: a line that never received
// its terminator before the connection closed is dropped, not dispatched.
// It reports whether bytes were discarded.
func (f *LineFramer) Close() bool {
	discarded := len(f.carry) != 0
	f.carry = nil
	return discarded
}
