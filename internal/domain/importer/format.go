package importer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format names an export payload syntax.
type Format string

// Supported formats.
const (
	FormatAuto Format = "auto"
	FormatXML  Format = "xml"
	FormatJSON Format = "json"
)

// ParseFormat accepts "", auto, xml and json, case-insensitive.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatAuto):
		return FormatAuto, nil
	case string(FormatXML):
		return FormatXML, nil
	case string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

const sniffSize = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// detectFormat peeks at the first non-space byte without consuming input.
func detectFormat(r *bufio.Reader) (Format, error) {
	head, err := r.Peek(sniffSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", malformed(1, 0, err)
	}
	head = bytes.TrimPrefix(head, utf8BOM)
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	if len(trimmed) == 0 {
		return "", malformed(1, 0, errors.New("empty export"))
	}
	switch trimmed[0] {
	case '<':
		return FormatXML, nil
	case '{', '[':
		return FormatJSON, nil
	default:
		return "", malformed(1, int64(len(head)-len(trimmed)), fmt.Errorf("unrecognized payload starting with %q", trimmed[0]))
	}
}
