package request

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/rickgao/rtu-client/internal/auth"
	"github.com/rickgao/rtu-client/internal/metrics"
	"github.com/rickgao/rtu-client/internal/model"
)

// Transport is the live channel. Implemented by *connection.Manager.
type Transport interface {
	IsReady() bool
	Send(data []byte) error
}

// Facade routes outbound requests to the live channel or to a fallback description.
type Facade struct {
	conn    Transport
	headers auth.HeaderProvider
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewFacade creates a Request Façade. A nil transport always falls back.
func NewFacade(conn Transport, headers auth.HeaderProvider, logger *slog.Logger, m *metrics.Metrics) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		conn:    conn,
		headers: headers,
		logger:  logger,
		metrics: m,
	}
}

// Send transmits req on the live connection when ready, otherwise returns the
// equivalent fallback. An invalid request returns ErrInvalidRequest and sends nothing.
func (f *Facade) Send(req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	if f.conn != nil && f.conn.IsReady() {
		err := f.sendLive(req)
		if err == nil {
			f.metrics.IncRequest(metrics.PathLive)
			return Outcome{Live: true}, nil
		}
		f.logger.Warn("live send failed, falling back",
			"error", err,
			"service", req.Service,
			"object", req.Object,
		)
	}

	fb, err := f.BuildFallback(req)
	if err != nil {
		return Outcome{}, err
	}
	f.metrics.IncRequest(metrics.PathFallback)
	return Outcome{Fallback: fb}, nil
}

// Call builds a Request from options and sends it. The default verb is GET.
func (f *Facade) Call(service, object string, opts ...Option) (Outcome, error) {
	req := Request{Service: service, Object: object, Verb: VerbGet}
	for _, opt := range opts {
		opt(&req)
	}
	return f.Send(req)
}

// BuildFallback constructs the HTTP description of req.
func (f *Facade) BuildFallback(req Request) (*Fallback, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	header := make(map[string]string)
	if f.headers != nil {
		authHeaders, err := f.headers.Headers()
		if err != nil {
			return nil, fmt.Errorf("auth headers: %w", err)
		}
		for k, v := range authHeaders {
			header[k] = v
		}
	}
	for k, v := range req.Headers {
		header[k] = v
	}

	query := url.Values{}
	for k, v := range req.Query {
		query.Set(k, v)
	}

	verb := req.verb()
	fb := &Fallback{
		Method: string(verb),
		Path:   req.Service + "/" + req.Object,
		Query:  query,
		Header: header,
	}

	if verb.HasBody() {
		body, err := encodeBody(req.Body)
		if err != nil {
			return nil, err
		}
		fb.Body = body
		fb.Header["Content-Type"] = "application/json"
	}

	return fb, nil
}

func (f *Facade) sendLive(req Request) error {
	wire := model.WireRequest{
		ServiceName: req.Service,
		ObjectName:  req.Object,
		Verb:        string(req.verb()),
		Query:       req.Query,
		Header:      req.Headers,
		Extra:       req.Extra,
	}
	if req.verb().HasBody() {
		body, err := encodeBody(req.Body)
		if err != nil {
			return err
		}
		wire.Body = body
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("encode wire request: %w", err)
	}
	return f.conn.Send(data)
}

// encodeBody marshals body to JSON. Raw JSON and byte slices pass through unchanged.
func encodeBody(body any) (json.RawMessage, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return json.RawMessage(b), nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode body: %v", ErrInvalidRequest, err)
	}
	return data, nil
}
