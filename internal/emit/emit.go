// Package emit writes the final AuthResult to stdout between sentinel
// markers so supervising processes can recover it from an arbitrarily
// noisy stream. Nothing else in this program is allowed to print to
// stdout.
package emit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
)

// Markers bracketing the result payload. Each sits alone on its own line.
const (
	StartMarker = "RESULT_JSON_START"
	EndMarker   = "RESULT_JSON_END"
)

// ErrNoResult is returned by ScanResult when the stream ends without a
// complete bracketed payload.
var ErrNoResult = errors.New("no result markers found")

// maxPayload bounds the scanner buffer. Captured bodies can inflate the
// result well past bufio's 64K default.
const maxPayload = 4 * 1024 * 1024

// WriteResult prints res as single-line JSON bracketed by the markers.
func WriteResult(w io.Writer, res *schemas.AuthResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n%s\n%s\n", StartMarker, payload, EndMarker); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// ScanResult reads a stream produced by an extraction run and returns the
// first bracketed result in it. Lines outside the markers are ignored, so
// it tolerates interleaved diagnostics from misbehaving subprocesses.
func ScanResult(r io.Reader) (*schemas.AuthResult, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxPayload)

	inside := false
	var payload bytes.Buffer
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == StartMarker:
			inside = true
			payload.Reset()
		case line == EndMarker && inside:
			var res schemas.AuthResult
			if err := json.Unmarshal(payload.Bytes(), &res); err != nil {
				return nil, fmt.Errorf("decode result payload: %w", err)
			}
			return &res, nil
		case inside:
			payload.WriteString(line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan result stream: %w", err)
	}
	return nil, ErrNoResult
}
