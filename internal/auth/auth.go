// Package auth builds the authentication headers attached to the live connection URI
// and to every fallback HTTP call.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Header names sent to the gateway.
const (
	HeaderToken       = "x-app-token"
	HeaderAppName     = "x-app-name"
	HeaderAppPlatform = "x-app-platform"
	HeaderDeviceID    = "x-device-id"
	HeaderKey         = "x-app-key"
	HeaderTimestamp   = "x-app-timestamp"
	HeaderSignature   = "x-app-signature"
)

// HeaderProvider returns the current set of outbound auth headers.
// The returned map is owned by the caller.
type HeaderProvider interface {
	Headers() (map[string]string, error)
}

// StaticHeaders is a HeaderProvider with a fixed header set.
type StaticHeaders map[string]string

// Headers returns a copy of the static set.
func (s StaticHeaders) Headers() (map[string]string, error) {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}

// Identity describes the application and device the client runs as.
type Identity struct {
	AppName     string
	AppPlatform string
	DeviceID    string
}

// Provider serves the session token, app identity and an optional request signature.
type Provider struct {
	identity Identity
	signer   *Signer

	mu    sync.RWMutex
	token string
}

// NewProvider creates a Provider. signer may be nil.
func NewProvider(identity Identity, token string, signer *Signer) *Provider {
	return &Provider{
		identity: identity,
		signer:   signer,
		token:    token,
	}
}

// SetToken replaces the session token; an empty token clears it.
func (p *Provider) SetToken(token string) {
	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
}

// Token returns the current session token.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// DeviceID returns the device identifier this client runs as.
func (p *Provider) DeviceID() string {
	return p.identity.DeviceID
}

// Headers implements HeaderProvider.
func (p *Provider) Headers() (map[string]string, error) {
	headers := make(map[string]string, 7)

	if token := p.Token(); token != "" {
		headers[HeaderToken] = token
	}
	if p.identity.AppName != "" {
		headers[HeaderAppName] = p.identity.AppName
	}
	if p.identity.AppPlatform != "" {
		headers[HeaderAppPlatform] = p.identity.AppPlatform
	}
	if p.identity.DeviceID != "" {
		headers[HeaderDeviceID] = p.identity.DeviceID
	}

	if p.signer != nil {
		signed, err := p.signer.Sign(p.identity.DeviceID)
		if err != nil {
			return nil, err
		}
		for k, v := range signed {
			headers[k] = v
		}
	}

	return headers, nil
}

// Signer produces RSA-PSS signatures proving possession of an app key.
type Signer struct {
	KeyID      string          // App key id sent in x-app-key
	PrivateKey *rsa.PrivateKey // RSA private key for signing
}

// LoadSigner loads a Signer from key ID and private key file path.
func LoadSigner(keyID, privateKeyPath string) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("app key ID is required")
	}
	if privateKeyPath == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Signer{
		KeyID:      keyID,
		PrivateKey: privateKey,
	}, nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	// PKCS#8 first, then PKCS#1
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return rsaKey, nil
}

// Sign returns the key, timestamp and signature headers for subject.
func (s *Signer) Sign(subject string) (map[string]string, error) {
	timestampMs := time.Now().UnixMilli()

	signature, err := s.generateSignature(timestampMs, subject)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		HeaderKey:       s.KeyID,
		HeaderTimestamp: strconv.FormatInt(timestampMs, 10),
		HeaderSignature: signature,
	}, nil
}

// generateSignature signs timestamp_ms + subject with RSA-PSS/SHA-256.
func (s *Signer) generateSignature(timestampMs int64, subject string) (string, error) {
	hashed := sha256.Sum256([]byte(SigningMessage(timestampMs, subject)))

	signature, err := rsa.SignPSS(
		rand.Reader,
		s.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// SigningMessage is the exact byte string covered by the signature.
func SigningMessage(timestampMs int64, subject string) string {
	return strconv.FormatInt(timestampMs, 10) + subject
}
