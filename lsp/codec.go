package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	"github.com/warpfork/go-errcat"

	"github.com/polydawn/lspws/api/lspws"
)

/*
	Reader decodes a stream of Content-Length framed messages.
	Other headers (Content-Type) are read and ignored.
*/
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{bufio.NewReader(r)}
}

/*
	Read the next message.
	Returns io.EOF unwrapped when the stream ends cleanly between messages;
	anything else broken is ErrRPCBreakdown.
*/
func (r *Reader) Read() (*Message, error) {
	body, err := r.ReadRaw()
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, errcat.Errorf(lspws.ErrRPCBreakdown, "malformed message: %s", err)
	}
	return &msg, nil
}

// Read the next message body without decoding it.
func (r *Reader) ReadRaw() ([]byte, error) {
	length := -1
	first := true
	for {
		line, err := r.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && first && line == "" {
				return nil, io.EOF
			}
			return nil, errcat.Errorf(lspws.ErrRPCBreakdown, "reading header: %s", err)
		}
		first = false
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			return nil, errcat.Errorf(lspws.ErrRPCBreakdown, "malformed header %q", line)
		}
		if textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(parts[0])) == "Content-Length" {
			length, err = strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil || length < 0 {
				return nil, errcat.Errorf(lspws.ErrRPCBreakdown, "invalid Content-Length %q", parts[1])
			}
		}
	}
	if length < 0 {
		return nil, errcat.Errorf(lspws.ErrRPCBreakdown, "missing Content-Length header")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, errcat.Errorf(lspws.ErrRPCBreakdown, "reading body: %s", err)
	}
	return body, nil
}

// Writer frames messages onto a stream.  Safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Write(msg *Message) error {
	if msg.JSONRPC == "" {
		msg.JSONRPC = Version
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return errcat.Errorf(lspws.ErrInternal, "cannot encode message: %s", err)
	}
	return w.WriteRaw(body)
}

func (w *Writer) WriteRaw(body []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := fmt.Fprintf(w.w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return errcat.Errorf(lspws.ErrRPCBreakdown, "writing header: %s", err)
	}
	if _, err := w.w.Write(body); err != nil {
		return errcat.Errorf(lspws.ErrRPCBreakdown, "writing body: %s", err)
	}
	return nil
}
