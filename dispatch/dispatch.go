// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package dispatch maps decoded requests to the plain text responses
// served by every worker.
package dispatch

import (
	"net/http"
	"regexp"

	"github.com/z5labs/hellopool/httpwire"
)

// Greeting is the body served for the root path.
const Greeting = "Hello World!"

// NotFoundBody is the body served for any unrecognized path.
const NotFoundBody = "404 Not Found\n"

var greetingPath = regexp.MustCompile(`^/greeting/([a-z]+)$`)

// Dispatch never fails. Unrecognized input maps to an error status.
func Dispatch(req httpwire.Request) httpwire.Response {
	if req.Method != http.MethodGet {
		return text(http.StatusBadRequest, "Invalid request-method '"+req.Method+"'\r\n")
	}

	if req.Path == "/" {
		return text(http.StatusOK, Greeting)
	}

	m := greetingPath.FindStringSubmatch(req.Path)
	if m == nil {
		return text(http.StatusNotFound, NotFoundBody)
	}
	return text(http.StatusOK, "Hello, "+m[1])
}

func text(status int, body string) httpwire.Response {
	return httpwire.Response{
		Status:      status,
		ContentType: httpwire.ContentTypeText,
		Body:        body,
		KeepAlive:   false,
	}
}
