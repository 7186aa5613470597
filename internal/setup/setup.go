// Package setup defines the PeerSetup/CleoSetup bootstrap bundles
// returned by CARL's generate_peer_setup/generate_cleo_setup operations
// and their wire encoding (spec.md §6): JSON, Brotli-compressed, then
// base64url without padding. Grounded on the teacher's config bootstrap
// envelopes (pkg/config), generalised to a compressed, portable string a
// human can paste into `opendut-edgar setup <string>` or `opendut-cleo
// setup <string>`.
package setup

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

// AuthConfig is the Disabled|Enabled union of OIDC settings handed to a
// new peer or CLEO install.
type AuthConfig struct {
	Enabled      bool     `json:"enabled"`
	IssuerURL    string   `json:"issuer_url,omitempty"`
	ClientId     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// VpnConfig is the Disabled|Netbird union of VPN bootstrap material.
type VpnConfig struct {
	Enabled       bool   `json:"enabled"`
	ManagementURL string `json:"management_url,omitempty"`
	SetupKey      string `json:"setup_key,omitempty"`
}

// PeerSetup is the bootstrap bundle handed to a new EDGAR install.
type PeerSetup struct {
	Id         string     `json:"id"`
	Carl       string     `json:"carl"`
	CA         string     `json:"ca"`
	AuthConfig AuthConfig `json:"auth_config"`
	Vpn        VpnConfig  `json:"vpn"`
}

// CleoSetup is the bootstrap bundle handed to a new CLEO install.
type CleoSetup struct {
	Carl       string     `json:"carl"`
	CA         string     `json:"ca"`
	AuthConfig AuthConfig `json:"auth_config"`
}

// NewPeerSetup assembles a PeerSetup for peerId, to be handed to that
// peer's operator.
func NewPeerSetup(peerId model.PeerId, carlURL, caPEM string, auth AuthConfig, vpn VpnConfig) PeerSetup {
	return PeerSetup{Id: peerId.String(), Carl: carlURL, CA: caPEM, AuthConfig: auth, Vpn: vpn}
}

// Encode serialises v to JSON, Brotli-compresses it, and base64url
// (no-padding) encodes the result.
func Encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("setup: marshal: %w", err)
	}

	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("setup: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("setup: compress: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode into out, which must be a pointer to PeerSetup,
// CleoSetup, or a compatible type.
func Decode(encoded string, out any) error {
	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("setup: base64 decode: %w", err)
	}

	raw, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		return fmt.Errorf("setup: decompress: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("setup: unmarshal: %w", err)
	}
	return nil
}

// EncodePeerSetup and DecodePeerSetup are typed convenience wrappers.
func EncodePeerSetup(p PeerSetup) (string, error) { return Encode(p) }

func DecodePeerSetup(encoded string) (PeerSetup, error) {
	var p PeerSetup
	err := Decode(encoded, &p)
	return p, err
}

func EncodeCleoSetup(c CleoSetup) (string, error) { return Encode(c) }

func DecodeCleoSetup(encoded string) (CleoSetup, error) {
	var c CleoSetup
	err := Decode(encoded, &c)
	return c, err
}
