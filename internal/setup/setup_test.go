package setup

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-sub001/internal/model"
)

func TestPeerSetupRoundTrip(t *testing.T) {
	peerId := model.PeerId{UUID: uuid.New()}
	original := NewPeerSetup(peerId, "https://carl.example:1234", "-----BEGIN CERTIFICATE-----\nMIIB...\n-----END CERTIFICATE-----",
		AuthConfig{Enabled: true, IssuerURL: "https://idp.example", ClientId: "edgar-client", ClientSecret: "supersecretvalue1234", Scopes: []string{"openid", "profile"}},
		VpnConfig{Enabled: true, ManagementURL: "https://vpn.example", SetupKey: uuid.NewString()},
	)

	encoded, err := EncodePeerSetup(original)
	require.NoError(t, err)
	assert.NotEmpty(t, encoded)
	assert.NotContains(t, encoded, "=") // base64url, no padding

	decoded, err := DecodePeerSetup(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestPeerSetupRoundTripDisabledVariants(t *testing.T) {
	peerId := model.PeerId{UUID: uuid.New()}
	original := NewPeerSetup(peerId, "https://carl.example", "", AuthConfig{}, VpnConfig{})

	encoded, err := EncodePeerSetup(original)
	require.NoError(t, err)

	decoded, err := DecodePeerSetup(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestCleoSetupRoundTrip(t *testing.T) {
	original := CleoSetup{
		Carl:       "https://carl.example",
		CA:         "cert-bytes",
		AuthConfig: AuthConfig{Enabled: true, IssuerURL: "https://idp.example", ClientId: "cleo-client", ClientSecret: "anothersecretvalue12", Scopes: []string{"openid"}},
	}

	encoded, err := EncodeCleoSetup(original)
	require.NoError(t, err)

	decoded, err := DecodeCleoSetup(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeRejectsInvalidBase64(t *testing.T) {
	_, err := DecodePeerSetup("not valid base64url!!")
	assert.Error(t, err)
}
