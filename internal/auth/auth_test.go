package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestProvider_Headers(t *testing.T) {
	p := NewProvider(Identity{
		AppName:     "reader",
		AppPlatform: "linux",
		DeviceID:    "dev-1",
	}, "tok-1", nil)

	headers, err := p.Headers()
	if err != nil {
		t.Fatalf("Headers failed: %v", err)
	}

	want := map[string]string{
		HeaderToken:       "tok-1",
		HeaderAppName:     "reader",
		HeaderAppPlatform: "linux",
		HeaderDeviceID:    "dev-1",
	}
	if diff := cmp.Diff(want, headers); diff != "" {
		t.Errorf("Headers mismatch (-want +got):\n%s", diff)
	}
}

func TestProvider_SetToken(t *testing.T) {
	p := NewProvider(Identity{DeviceID: "dev-1"}, "old", nil)

	p.SetToken("new")
	if p.Token() != "new" {
		t.Errorf("Token = %q, want new", p.Token())
	}

	p.SetToken("")
	headers, _ := p.Headers()
	if _, ok := headers[HeaderToken]; ok {
		t.Error("cleared token still present in headers")
	}
	if p.DeviceID() != "dev-1" {
		t.Errorf("DeviceID = %q, want dev-1", p.DeviceID())
	}
}

func TestProvider_HeadersAreCopies(t *testing.T) {
	p := NewProvider(Identity{DeviceID: "dev-1"}, "tok", nil)

	h1, _ := p.Headers()
	h1[HeaderToken] = "mutated"

	h2, _ := p.Headers()
	if h2[HeaderToken] != "tok" {
		t.Errorf("mutation leaked into provider: %q", h2[HeaderToken])
	}
}

func TestProvider_Signed(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	p := NewProvider(Identity{DeviceID: "dev-9"}, "tok", &Signer{KeyID: "key-1", PrivateKey: privateKey})

	headers, err := p.Headers()
	if err != nil {
		t.Fatalf("Headers failed: %v", err)
	}

	if headers[HeaderKey] != "key-1" {
		t.Errorf("%s = %q, want key-1", HeaderKey, headers[HeaderKey])
	}
	if !isValidBase64(headers[HeaderSignature]) {
		t.Errorf("%s is not valid base64: %q", HeaderSignature, headers[HeaderSignature])
	}

	// The signature must verify against timestamp + device id.
	ts, err := strconv.ParseInt(headers[HeaderTimestamp], 10, 64)
	if err != nil {
		t.Fatalf("bad timestamp %q: %v", headers[HeaderTimestamp], err)
	}
	sig, _ := base64.StdEncoding.DecodeString(headers[HeaderSignature])
	hashed := sha256.Sum256([]byte(SigningMessage(ts, "dev-9")))
	if err := rsa.VerifyPSS(&privateKey.PublicKey, crypto.SHA256, hashed[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestStaticHeaders(t *testing.T) {
	s := StaticHeaders{HeaderToken: "t"}

	h, err := s.Headers()
	if err != nil {
		t.Fatalf("Headers failed: %v", err)
	}
	h[HeaderToken] = "changed"

	if s[HeaderToken] != "t" {
		t.Error("StaticHeaders returned its own map")
	}
}

func TestLoadPrivateKey_PKCS8(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	pkcs8Bytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		t.Fatalf("failed to marshal PKCS#8: %v", err)
	}

	tmpFile := writePEM(t, &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8Bytes})

	loadedKey, err := LoadPrivateKey(tmpFile)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}

	if loadedKey.N.Cmp(privateKey.N) != 0 {
		t.Error("loaded key does not match original")
	}
}

func TestLoadPrivateKey_PKCS1(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}

	tmpFile := writePEM(t, &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privateKey)})

	loadedKey, err := LoadPrivateKey(tmpFile)
	if err != nil {
		t.Fatalf("LoadPrivateKey failed: %v", err)
	}

	if loadedKey.N.Cmp(privateKey.N) != 0 {
		t.Error("loaded key does not match original")
	}
}

func TestLoadPrivateKey_Errors(t *testing.T) {
	if _, err := LoadPrivateKey("/nonexistent/path/to/key.pem"); err == nil {
		t.Error("expected error for nonexistent file")
	}

	tmpFile := filepath.Join(t.TempDir(), "invalid.pem")
	if err := os.WriteFile(tmpFile, []byte("not a pem file"), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if _, err := LoadPrivateKey(tmpFile); err == nil {
		t.Error("expected error for invalid PEM")
	}
}

func TestLoadSigner(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate test key: %v", err)
	}
	pkcs8Bytes, _ := x509.MarshalPKCS8PrivateKey(privateKey)
	tmpFile := writePEM(t, &pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8Bytes})

	signer, err := LoadSigner("my-key-id", tmpFile)
	if err != nil {
		t.Fatalf("LoadSigner failed: %v", err)
	}
	if signer.KeyID != "my-key-id" {
		t.Errorf("KeyID = %q, want %q", signer.KeyID, "my-key-id")
	}
	if signer.PrivateKey == nil {
		t.Error("PrivateKey is nil")
	}

	if _, err := LoadSigner("", tmpFile); err == nil {
		t.Error("expected error for missing key ID")
	}
	if _, err := LoadSigner("key-id", ""); err == nil {
		t.Error("expected error for missing path")
	}
}

func writePEM(t *testing.T, block *pem.Block) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "test-key.pem")
	if err := os.WriteFile(tmpFile, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return tmpFile
}

func isValidBase64(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/=", c) {
			return false
		}
	}
	return len(s) > 0
}
