package request

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Errors
var (
	ErrInvalidRequest = errors.New("invalid request")
)

// Verb is an HTTP-style request verb.
type Verb string

const (
	VerbGet    Verb = "GET"
	VerbPost   Verb = "POST"
	VerbPut    Verb = "PUT"
	VerbDelete Verb = "DELETE"
)

// Valid reports whether v is a supported verb.
func (v Verb) Valid() bool {
	switch v {
	case VerbGet, VerbPost, VerbPut, VerbDelete:
		return true
	}
	return false
}

// HasBody reports whether requests with this verb carry a JSON body.
func (v Verb) HasBody() bool {
	return v == VerbPost || v == VerbPut
}

// Request is one outbound request addressed to Service/Object.
type Request struct {
	Service string
	Object  string
	Verb    Verb // Empty means GET
	Query   map[string]string
	Headers map[string]string
	Body    any // Encoded as JSON; ignored for GET and DELETE
	Extra   map[string]string
}

// Validate checks that the request can be sent on either path.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Service) == "" {
		return fmt.Errorf("%w: missing service", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Object) == "" {
		return fmt.Errorf("%w: missing object", ErrInvalidRequest)
	}
	if !r.verb().Valid() {
		return fmt.Errorf("%w: unsupported verb %q", ErrInvalidRequest, r.Verb)
	}
	return nil
}

func (r Request) verb() Verb {
	if r.Verb == "" {
		return VerbGet
	}
	return Verb(strings.ToUpper(string(r.Verb)))
}

// Fallback describes the HTTP call equivalent to a Request.
type Fallback struct {
	Method string
	Path   string // "Service/Object", relative to the HTTP base URL
	Query  url.Values
	Header map[string]string
	Body   []byte // JSON; nil for GET and DELETE
}

// URL resolves the fallback against base, e.g. "https://api.example.com/v1".
func (f *Fallback) URL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + f.Path
	u.RawPath = ""
	u.RawQuery = f.Query.Encode()
	return u.String(), nil
}

// Outcome reports which path a request took. Exactly one of Live or Fallback is set.
type Outcome struct {
	Live     bool
	Fallback *Fallback
}

// Option configures a Request built by Call.
type Option func(*Request)

// WithVerb sets the verb.
func WithVerb(v Verb) Option {
	return func(r *Request) { r.Verb = v }
}

// WithQuery sets the query parameters.
func WithQuery(q map[string]string) Option {
	return func(r *Request) { r.Query = q }
}

// WithHeaders sets request headers.
func WithHeaders(h map[string]string) Option {
	return func(r *Request) { r.Headers = h }
}

// WithBody sets the JSON body.
func WithBody(body any) Option {
	return func(r *Request) { r.Body = body }
}

// WithExtra sets out-of-band fields carried on the live channel only.
func WithExtra(extra map[string]string) Option {
	return func(r *Request) { r.Extra = extra }
}
