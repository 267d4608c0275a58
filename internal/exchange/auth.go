package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Credentials is the generic {api key, secret, passphrase} triplet every
// HMAC-credentialed venue in spec.md §6's ex_credential_configs carries.
// Adapted from the teacher's Credentials — the EIP-712/wallet-specific L1
// layer has no equivalent in the generic multi-exchange domain and is
// dropped (see DESIGN.md's dropped-dependency ledger).
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// Auth signs REST requests with HMAC-SHA256, the same scheme as the
// teacher's L2 buildHMAC — message = timestamp + method + path [+ body].
type Auth struct {
	creds Credentials
}

// NewAuth builds an Auth from credentials.
func NewAuth(creds Credentials) *Auth {
	return &Auth{creds: creds}
}

// HasCredentials reports whether every credential field is populated.
func (a *Auth) HasCredentials() bool {
	return a.creds.APIKey != "" && a.creds.Secret != "" && a.creds.Passphrase != ""
}

// Headers produces the signed header set for one REST request.
func (a *Auth) Headers(method, path, body string) (map[string]string, error) {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := a.buildHMAC(timestamp, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("exchange: build hmac: %w", err)
	}
	return map[string]string{
		"X-API-KEY":        a.creds.APIKey,
		"X-API-SIGNATURE":  sig,
		"X-API-TIMESTAMP":  timestamp,
		"X-API-PASSPHRASE": a.creds.Passphrase,
	}, nil
}

// buildHMAC computes the HMAC-SHA256 signature for one request, tolerant
// of the same handful of base64 flavors venues disagree on (URL-safe,
// raw, standard, and raw-standard encodings).
func (a *Auth) buildHMAC(timestamp, method, path, body string) (string, error) {
	decoders := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}

	var secretBytes []byte
	var err error
	for _, dec := range decoders {
		secretBytes, err = dec.DecodeString(a.creds.Secret)
		if err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	message := timestamp + method + path
	if body != "" {
		message += body
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
