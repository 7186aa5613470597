package peerauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

// newJWKServer serves a single RSA key's certs document at
// {url}/protocol/openid-connect/certs, as NewKeySource expects.
func newJWKServer(t *testing.T, kid string, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	jwk := JsonWebKey{
		Kid: kid,
		Kty: "RSA",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/protocol/openid-connect/certs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwkSet{Keys: []JsonWebKey{jwk}})
	})
	return httptest.NewServer(mux)
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestAuthenticateAcceptsPrimaryIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := newJWKServer(t, "kid-1", key)
	defer server.Close()

	peerId := model.NewPeerId()
	v := &Validator{
		Keys:     NewKeySource(server.URL, server.Client()),
		Issuer:   "https://remote.example/realms/opendut",
		Audience: "account",
	}
	token := signToken(t, key, "kid-1", Claims{jwt.RegisteredClaims{
		Issuer:    "https://remote.example/realms/opendut",
		Audience:  jwt.ClaimStrings{"account"},
		Subject:   peerId.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})

	got, err := v.Authenticate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, peerId, got)
}

func TestAuthenticateRetriesIssuerFallbackOnInvalidIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := newJWKServer(t, "kid-1", key)
	defer server.Close()

	peerId := model.NewPeerId()
	v := &Validator{
		Keys:           NewKeySource(server.URL, server.Client()),
		Issuer:         "https://remote.example/realms/opendut",
		IssuerFallback: "https://local.example/realms/opendut",
		Audience:       "account",
	}
	// Token was minted against the dev-mode local issuer, not the remote one.
	token := signToken(t, key, "kid-1", Claims{jwt.RegisteredClaims{
		Issuer:    "https://local.example/realms/opendut",
		Audience:  jwt.ClaimStrings{"account"},
		Subject:   peerId.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})

	got, err := v.Authenticate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, peerId, got)
}

func TestAuthenticateRejectsIssuerMatchingNeitherWhenNoFallbackConfigured(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := newJWKServer(t, "kid-1", key)
	defer server.Close()

	v := &Validator{
		Keys:     NewKeySource(server.URL, server.Client()),
		Issuer:   "https://remote.example/realms/opendut",
		Audience: "account",
	}
	token := signToken(t, key, "kid-1", Claims{jwt.RegisteredClaims{
		Issuer:    "https://someone-else.example/realms/opendut",
		Audience:  jwt.ClaimStrings{"account"},
		Subject:   model.NewPeerId().String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})

	_, err = v.Authenticate(context.Background(), token)
	require.Error(t, err)
}

func TestAuthenticateRejectsWrongAudienceEvenWithFallbackConfigured(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	server := newJWKServer(t, "kid-1", key)
	defer server.Close()

	v := &Validator{
		Keys:           NewKeySource(server.URL, server.Client()),
		Issuer:         "https://remote.example/realms/opendut",
		IssuerFallback: "https://local.example/realms/opendut",
		Audience:       "account",
	}
	// Issuer matches the primary, so the fallback must not even be tried;
	// the wrong audience alone must fail.
	token := signToken(t, key, "kid-1", Claims{jwt.RegisteredClaims{
		Issuer:    "https://remote.example/realms/opendut",
		Audience:  jwt.ClaimStrings{"someone-else"},
		Subject:   model.NewPeerId().String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})

	_, err = v.Authenticate(context.Background(), token)
	require.Error(t, err)
}
