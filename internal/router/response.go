package router

import (
	"encoding/json"
	"net/http"

	"github.com/vyrodovalexey/langgate/internal/util"
)

// Response is a fully buffered HTTP response. Middlewares may inspect and
// amend it on the way back out of the chain.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// NewResponse creates a response with an empty header set.
func NewResponse(status int, body []byte) *Response {
	return &Response{Status: status, Header: make(http.Header), Body: body}
}

// JSON marshals v into a JSON response.
func JSON(status int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	resp := NewResponse(status, body)
	resp.Header.Set(util.HeaderContentType, util.ContentTypeJSON)
	return resp, nil
}

// Text creates a plain-text response.
func Text(status int, s string) *Response {
	resp := NewResponse(status, []byte(s))
	resp.Header.Set(util.HeaderContentType, util.ContentTypeText)
	return resp
}

// Error creates a {"error": message} JSON response.
func Error(status int, message string) *Response {
	resp := NewResponse(status, util.MarshalErrorBody(message))
	resp.Header.Set(util.HeaderContentType, util.ContentTypeJSON)
	return resp
}

// NoContent creates an empty 204 response.
func NoContent() *Response {
	return NewResponse(http.StatusNoContent, nil)
}

// Write copies the response onto w.
func (r *Response) Write(w http.ResponseWriter, method string) {
	dst := w.Header()
	for k, v := range r.Header {
		dst[k] = v
	}
	w.WriteHeader(r.Status)
	if method == http.MethodHead || len(r.Body) == 0 {
		return
	}
	_, _ = w.Write(r.Body)
}

// FromError answers client errors (4xx) with a JSON error body. Anything
// else is handed back so Dispatch logs it and answers 500.
func FromError(err error) (*Response, error) {
	status := util.StatusFor(err)
	if status >= http.StatusInternalServerError {
		return nil, err
	}
	return Error(status, util.PublicMessage(err)), nil
}
