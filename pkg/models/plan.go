package models

import (
	"net/http"
	"net/url"
)

// RequestPlan is a fully resolved HTTP request: method, absolute URL with
// path parameters substituted, query and form values, headers and JSON body.
// Produced by the parameter binder, executed by the invoker.
type RequestPlan struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   []byte     // JSON body, nil when the operation has none
	Form   url.Values // form-encoded body, nil when the operation has none
}

// FullURL returns the URL with the encoded query string appended.
func (p *RequestPlan) FullURL() string {
	if len(p.Query) == 0 {
		return p.URL
	}
	return p.URL + "?" + p.Query.Encode()
}
