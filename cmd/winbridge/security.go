package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const signatureHeader = "X-Webhook-Signature"

// verifySignature reads the body and checks it against "sha256=<hex>" in headerName.
// With no secret the body is accepted unless production is set.
func verifySignature(r *http.Request, secret, headerName string, production bool) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if secret == "" {
		if production {
			return nil, fmt.Errorf("webhook secret is required in production mode")
		}
		return body, nil
	}

	header := r.Header.Get(headerName)
	if header == "" {
		return nil, fmt.Errorf("missing signature header: %s", headerName)
	}

	algo, sigHex, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(algo, "sha256") {
		return nil, fmt.Errorf("invalid signature format in header %s", headerName)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sigHex))) {
		return nil, fmt.Errorf("signature mismatch")
	}
	return body, nil
}
