// Package jwkutil contains small helpers around JSON Web Keys.
package jwkutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// GenerateRandomJwk returns a fresh ES256 signing key with its thumbprint
// as key id.
func GenerateRandomJwk() (jwk.Key, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	jwkKey, err := jwk.FromRaw(privateKey)
	if err != nil {
		return nil, fmt.Errorf("could not create jwk from key: %w", err)
	}

	thumbprint, err := ThumbprintS256(jwkKey)
	if err != nil {
		return nil, fmt.Errorf("could not create thumbprint: %w", err)
	}
	jwkKey.Set(jwk.KeyIDKey, thumbprint)
	jwkKey.Set(jwk.AlgorithmKey, jwa.ES256)

	return jwkKey, nil
}

func ThumbprintS256(key jwk.Key) (string, error) {
	thumbprint, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("could not create thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

// LoadJwkFromPem reads a PEM-encoded private key from disk.
func LoadJwkFromPem(path string) (jwk.Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return jwk.ParseKey(data, jwk.WithPEM(true))
}

// PublicJwkSet returns the public counterpart of every key in the set.
func PublicJwkSet(set jwk.Set) (jwk.Set, error) {
	publicSet := jwk.NewSet()
	for i := 0; i < set.Len(); i++ {
		key, _ := set.Key(i)
		publicKey, err := key.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("could not get public key: %w", err)
		}
		publicSet.AddKey(publicKey)
	}
	return publicSet, nil
}
