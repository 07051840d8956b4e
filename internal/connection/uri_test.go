package connection

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func TestBuildURI(t *testing.T) {
	headers := map[string]string{"x-app-token": "abc", "x-device-id": "dev-1"}

	tests := []struct {
		name       string
		endpoint   string
		restart    bool
		wantPrefix string
	}{
		{"https to wss", "https://gw.example.com", false, "wss://gw.example.com/rtu/"},
		{"http to ws", "http://localhost:8080", false, "ws://localhost:8080/rtu/"},
		{"base path kept", "https://gw.example.com/api/", false, "wss://gw.example.com/api/rtu/"},
		{"restart flag", "wss://gw.example.com", true, "wss://gw.example.com/rtu/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, err := BuildURI(tt.endpoint, headers, tt.restart)
			if err != nil {
				t.Fatalf("BuildURI failed: %v", err)
			}
			if !strings.HasPrefix(uri, tt.wantPrefix) {
				t.Errorf("uri = %s, want prefix %s", uri, tt.wantPrefix)
			}

			u, err := url.Parse(uri)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			_, hasRestart := u.Query()[ParamRestart]
			if hasRestart != tt.restart {
				t.Errorf("x-restart present = %v, want %v", hasRestart, tt.restart)
			}

			decoded, err := DecodeRequestParam(uri)
			if err != nil {
				t.Fatalf("DecodeRequestParam: %v", err)
			}
			if decoded["x-app-token"] != "abc" || decoded["x-device-id"] != "dev-1" {
				t.Errorf("decoded headers = %v", decoded)
			}
		})
	}
}

func TestBuildURI_FreshToken(t *testing.T) {
	a, _ := BuildURI("https://gw.example.com", nil, false)
	b, _ := BuildURI("https://gw.example.com", nil, false)

	ta, tb := TokenFromURI(a), TokenFromURI(b)
	if ta == "" || tb == "" {
		t.Fatalf("empty token: %q %q", ta, tb)
	}
	if ta == tb {
		t.Errorf("tokens should differ, both %s", ta)
	}
}

func TestBuildURI_NoPadding(t *testing.T) {
	uri, err := BuildURI("https://gw.example.com", map[string]string{"k": "v"}, false)
	if err != nil {
		t.Fatalf("BuildURI failed: %v", err)
	}
	u, _ := url.Parse(uri)
	if strings.ContainsAny(u.Query().Get(ParamRequest), "=+/") {
		t.Errorf("x-request not raw url-safe: %s", u.Query().Get(ParamRequest))
	}
}

func TestBuildURI_Invalid(t *testing.T) {
	for _, endpoint := range []string{"ftp://gw.example.com", "https://", "::bad"} {
		if _, err := BuildURI(endpoint, nil, false); !errors.Is(err, ErrInvalidEndpoint) {
			t.Errorf("BuildURI(%q) err = %v, want ErrInvalidEndpoint", endpoint, err)
		}
	}
}
