package model

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretValidateGenericRequiresValue(t *testing.T) {
	s := &Secret{Name: "s1", Type: SecretGeneric}
	require.Error(t, s.Validate())
}

func TestSecretValidateTLSCertificateRequiresChainAndKey(t *testing.T) {
	s := &Secret{Name: "s1", Type: SecretTLSCertificate}
	require.Error(t, s.Validate())

	s.Configuration.CertificateChainB64 = "Y2VydA=="
	s.Configuration.PrivateKeyB64 = "a2V5"
	require.NoError(t, s.Validate())
}

func TestSecretValidateSessionTicketKeysRequiresExactly80Bytes(t *testing.T) {
	short := base64.StdEncoding.EncodeToString(make([]byte, 16))
	s := &Secret{Name: "s1", Type: SecretSessionTicketKeys, Configuration: SecretConfiguration{SessionTicketKeysB64: short}}
	require.Error(t, s.Validate())

	exact := base64.StdEncoding.EncodeToString(make([]byte, 80))
	s.Configuration.SessionTicketKeysB64 = exact
	require.NoError(t, s.Validate())
}

func TestSecretValidateRejectsUnknownType(t *testing.T) {
	s := &Secret{Name: "s1", Type: SecretType("unknown")}
	require.Error(t, s.Validate())
}
