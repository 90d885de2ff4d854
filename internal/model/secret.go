package model

import "encoding/base64"

// SecretType is the kind of envoy tls secret this row encodes.
type SecretType string

const (
	SecretGeneric                 SecretType = "GenericSecret"
	SecretTLSCertificate          SecretType = "TlsCertificate"
	SecretCertificateValidation   SecretType = "CertificateValidationContext"
	SecretSessionTicketKeys       SecretType = "SessionTicketKeys"
)

// SecretConfiguration carries the base64-inline material for each secret
// type; exactly the fields relevant to SecretType are populated.
type SecretConfiguration struct {
	GenericSecretValueB64 string

	CertificateChainB64 string
	PrivateKeyB64       string

	TrustedCAB64       string
	VerifySubjectAltName []string

	SessionTicketKeysB64 string
}

// Secret is the TLS material entity.
type Secret struct {
	ID            string
	Name          string
	Type          SecretType
	Configuration SecretConfiguration
	Team          string
}

func (s *Secret) Validate() error {
	if s.Name == "" {
		return invalid("name", "secret name must not be empty")
	}
	switch s.Type {
	case SecretGeneric:
		if s.Configuration.GenericSecretValueB64 == "" {
			return invalid("configuration", "generic secret %q requires a value", s.Name)
		}
	case SecretTLSCertificate:
		if s.Configuration.CertificateChainB64 == "" || s.Configuration.PrivateKeyB64 == "" {
			return invalid("configuration", "tls certificate secret %q requires certificate_chain and private_key", s.Name)
		}
	case SecretCertificateValidation:
		if s.Configuration.TrustedCAB64 == "" {
			return invalid("configuration", "certificate validation context %q requires a trusted ca", s.Name)
		}
	case SecretSessionTicketKeys:
		raw, err := base64.StdEncoding.DecodeString(s.Configuration.SessionTicketKeysB64)
		if err != nil {
			return invalid("configuration", "session ticket keys %q must be valid base64: %v", s.Name, err)
		}
		if len(raw) != 80 {
			return invalid("configuration", "session ticket keys %q must decode to exactly 80 bytes, got %d", s.Name, len(raw))
		}
	default:
		return invalid("type", "unknown secret type %q", s.Type)
	}
	return nil
}
