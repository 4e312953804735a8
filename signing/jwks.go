package signing

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/giantswarm/tokengate/verifier"
)

// maxJWKSSize bounds the JWKS response body.
const maxJWKSSize = 1 << 20

// JWK is a JSON Web Key (RFC 7517). Only RSA signing keys are used.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKS is a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewRSAJWK builds the JWK form of an RSA public key.
func NewRSAJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: verifier.HeaderAlgorithm,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// usable reports whether j is an RS256 signing key with a key id.
func (j JWK) usable() bool {
	if j.Kty != "RSA" || j.Kid == "" {
		return false
	}
	if j.Use != "" && j.Use != "sig" {
		return false
	}
	return j.Alg == "" || j.Alg == verifier.HeaderAlgorithm
}

// RSAPublicKey decodes the modulus and exponent of j.
func (j JWK) RSAPublicKey() (*rsa.PublicKey, error) {
	if j.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", j.Kty)
	}
	nb, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}
	if len(nb) == 0 || len(eb) == 0 {
		return nil, errors.New("modulus and exponent are required")
	}
	e := new(big.Int).SetBytes(eb)
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}, nil
}

// ParseJWKS decodes a JWKS document and returns its usable RSA keys by key
// id. Keys of other types or uses are skipped. A document without any usable
// key is an error.
func ParseJWKS(data []byte) (map[string]*rsa.PublicKey, error) {
	var set JWKS
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, j := range set.Keys {
		if !j.usable() {
			continue
		}
		key, err := j.RSAPublicKey()
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", j.Kid, err)
		}
		keys[j.Kid] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("JWKS contains no RSA signing keys")
	}
	return keys, nil
}

// FetchJWKS downloads and parses the JWKS document at url. A nil client uses
// http.DefaultClient.
func FetchJWKS(ctx context.Context, client *http.Client, url string) (map[string]*rsa.PublicKey, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch JWKS: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read JWKS: %w", err)
	}
	return ParseJWKS(data)
}

// LoadJWKS replaces the contents of the set with the keys published at url.
// The set is left unchanged on error.
func (s *KeySet) LoadJWKS(ctx context.Context, client *http.Client, url string) error {
	keys, err := FetchJWKS(ctx, client, url)
	if err != nil {
		return err
	}
	s.Replace(keys)
	s.logger.Info("Loaded signing keys from JWKS", "url", url, "count", len(keys))
	return nil
}
