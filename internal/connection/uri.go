package connection

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Query parameters on the connection URI.
const (
	ParamRequest = "x-request"
	ParamRestart = "x-restart"
)

// BuildURI builds a single-use connection URI:
//
//	{ws|wss}://<host>[/base]/rtu/<random-token>?x-request=<base64url(JSON(headers))>[&x-restart=]
//
// Every call produces a new token.
func BuildURI(endpoint string, headers map[string]string, isRestart bool) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}

	if headers == nil {
		headers = map[string]string{}
	}
	snapshot, err := json.Marshal(headers)
	if err != nil {
		return "", fmt.Errorf("encode auth headers: %w", err)
	}

	query := url.Values{}
	query.Set(ParamRequest, base64.RawURLEncoding.EncodeToString(snapshot))
	if isRestart {
		query.Set(ParamRestart, "")
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/rtu/" + uuid.NewString()
	u.RawPath = ""
	u.RawQuery = query.Encode()
	u.Fragment = ""

	return u.String(), nil
}

// TokenFromURI returns the random token segment of a URI built by BuildURI.
func TokenFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	_, token, found := strings.Cut(u.Path, "/rtu/")
	if !found {
		return ""
	}
	return token
}

// DecodeRequestParam decodes the x-request snapshot of a URI built by BuildURI.
func DecodeRequestParam(uri string) (map[string]string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	raw, err := base64.RawURLEncoding.DecodeString(u.Query().Get(ParamRequest))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ParamRequest, err)
	}
	var headers map[string]string
	if err := json.Unmarshal(raw, &headers); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ParamRequest, err)
	}
	return headers, nil
}
