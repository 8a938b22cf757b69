// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpwire provides the default HTTP/1.x request decoder and
// response encoder used by workers.
package httpwire

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ContentTypeText is the only content type responses are sent with.
const ContentTypeText = "text/plain"

// Request is the decoded form of a single inbound request.
type Request struct {
	Method string
	Target string
	Path   string
	Header http.Header
}

// Response describes the message a worker writes back to its peer.
type Response struct {
	Status      int
	ContentType string
	Body        string
	KeepAlive   bool
}

// MalformedRequestError occurs when the request line or headers
// could not be parsed. This includes running out of bytes before
// the header section completes.
type MalformedRequestError struct {
	Cause error
}

// Error implements the [error] interface.
func (e MalformedRequestError) Error() string {
	return fmt.Sprintf("malformed request: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e MalformedRequestError) Unwrap() error {
	return e.Cause
}

// BodyReadError occurs when the request body could not be fully consumed.
type BodyReadError struct {
	Cause error
}

// Error implements the [error] interface.
func (e BodyReadError) Error() string {
	return fmt.Sprintf("failed to read request body: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e BodyReadError) Unwrap() error {
	return e.Cause
}

// Decoder reads exactly one HTTP/1.x request. Any size ceiling is
// enforced by the reader it is given.
type Decoder struct{}

// Decode implements the worker.Decoder interface. The body, if any,
// is read and discarded.
func (Decoder) Decode(r *bufio.Reader) (Request, error) {
	req, err := http.ReadRequest(r)
	if err != nil {
		return Request{}, MalformedRequestError{Cause: err}
	}
	defer req.Body.Close()

	_, err = io.Copy(io.Discard, req.Body)
	if err != nil {
		return Request{}, BodyReadError{Cause: err}
	}

	return Request{
		Method: req.Method,
		Target: req.RequestURI,
		Path:   req.URL.Path,
		Header: req.Header,
	}, nil
}

// EncodeError occurs when a response could not be serialized onto the wire.
type EncodeError struct {
	Cause error
}

// Error implements the [error] interface.
func (e EncodeError) Error() string {
	return fmt.Sprintf("failed to encode response: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e EncodeError) Unwrap() error {
	return e.Cause
}

// Encoder writes HTTP/1.1 responses.
type Encoder struct {
	// ServerName is sent as the Server header when non-empty.
	ServerName string
}

// Encode implements the worker.Encoder interface.
func (e Encoder) Encode(w io.Writer, resp Response) error {
	hr := &http.Response{
		StatusCode:    resp.Status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header, 2),
		Body:          io.NopCloser(strings.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Close:         !resp.KeepAlive,
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = ContentTypeText
	}
	hr.Header.Set("Content-Type", contentType)
	if e.ServerName != "" {
		hr.Header.Set("Server", e.ServerName)
	}

	err := hr.Write(w)
	if err != nil {
		return EncodeError{Cause: err}
	}
	return nil
}
