package transport

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// STOMP 1.2 commands used by the chat protocol
const (
	CommandConnect     = "CONNECT"
	CommandConnected   = "CONNECTED"
	CommandSend        = "SEND"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandDisconnect  = "DISCONNECT"
	CommandMessage     = "MESSAGE"
	CommandReceipt     = "RECEIPT"
	CommandError       = "ERROR"
)

// ErrMalformedFrame is returned by ParseFrame for undecodable input
var ErrMalformedFrame = errors.New("malformed stomp frame")

// HeaderField is a single frame header
type HeaderField struct {
	Key   string
	Value string
}

// Frame is one STOMP frame
type Frame struct {
	Command string
	Headers []HeaderField
	Body    []byte
}

// NewFrame builds a frame from alternating header keys and values
func NewFrame(command string, kv ...string) *Frame {
	f := &Frame{Command: command}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers = append(f.Headers, HeaderField{Key: kv[i], Value: kv[i+1]})
	}
	return f
}

// Get returns the first value for key. Repeated headers keep the first
// occurrence, as STOMP requires.
func (f *Frame) Get(key string) string {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return ""
}

// Set replaces or appends a header
func (f *Frame) Set(key, value string) {
	for i, h := range f.Headers {
		if h.Key == key {
			f.Headers[i].Value = value
			return
		}
	}
	f.Headers = append(f.Headers, HeaderField{Key: key, Value: value})
}

// Marshal encodes the frame including its NUL terminator
func (f *Frame) Marshal() []byte {
	var b bytes.Buffer
	escape := f.Command != CommandConnect && f.Command != CommandConnected
	b.WriteString(f.Command)
	b.WriteByte('\n')
	for _, h := range f.Headers {
		if h.Key == "content-length" {
			continue
		}
		if escape {
			b.WriteString(headerEscaper.Replace(h.Key))
			b.WriteByte(':')
			b.WriteString(headerEscaper.Replace(h.Value))
		} else {
			b.WriteString(h.Key)
			b.WriteByte(':')
			b.WriteString(h.Value)
		}
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		b.WriteString("content-length:")
		b.WriteString(strconv.Itoa(len(f.Body)))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

var (
	headerEscaper   = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)
	headerUnescaper = strings.NewReplacer(`\\`, `\`, `\r`, "\r", `\n`, "\n", `\c`, ":")
)

// ParseFrame decodes a single frame. A heart-beat (only EOLs) returns a nil
// frame and no error.
func ParseFrame(data []byte) (*Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return nil, nil
	}

	end := bytes.Index(data, []byte("\n\n"))
	sepLen := 2
	if crlf := bytes.Index(data, []byte("\r\n\r\n")); crlf >= 0 && (end < 0 || crlf < end) {
		end, sepLen = crlf, 4
	}
	if end < 0 {
		return nil, ErrMalformedFrame
	}

	lines := strings.Split(strings.ReplaceAll(string(data[:end]), "\r\n", "\n"), "\n")
	f := &Frame{Command: strings.TrimSpace(lines[0])}
	if f.Command == "" {
		return nil, ErrMalformedFrame
	}
	unescape := f.Command != CommandConnect && f.Command != CommandConnected
	for _, line := range lines[1:] {
		i := strings.IndexByte(line, ':')
		if i < 0 {
			return nil, errors.Wrapf(ErrMalformedFrame, "header line %q", line)
		}
		key, value := line[:i], line[i+1:]
		if unescape {
			key, value = headerUnescaper.Replace(key), headerUnescaper.Replace(value)
		}
		f.Headers = append(f.Headers, HeaderField{Key: key, Value: value})
	}

	body := data[end+sepLen:]
	if cl := f.Get("content-length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n > len(body) {
			return nil, errors.Wrapf(ErrMalformedFrame, "content-length %q", cl)
		}
		body = body[:n]
	} else if i := bytes.IndexByte(body, 0); i >= 0 {
		body = body[:i]
	}
	if len(body) > 0 {
		f.Body = append([]byte(nil), body...)
	}
	return f, nil
}
