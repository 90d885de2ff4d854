package compiler

import (
	"encoding/base64"
	"fmt"

	corepb "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	tlspb "github.com/envoyproxy/go-control-plane/envoy/extensions/transport_sockets/tls/v3"
	matcherpb "github.com/envoyproxy/go-control-plane/envoy/type/matcher/v3"

	"github.com/moonkev/flexds/internal/cache"
	"github.com/moonkev/flexds/internal/model"
)

// CompileSecret compiles a validated model.Secret into its
// envoy.extensions.transport_sockets.tls.v3.Secret.
func CompileSecret(s *model.Secret) (cache.BuiltResource, error) {
	out := &tlspb.Secret{Name: s.Name}
	cfg := s.Configuration

	switch s.Type {
	case model.SecretGeneric:
		src, err := inlineFromB64(cfg.GenericSecretValueB64)
		if err != nil {
			return cache.BuiltResource{}, fmt.Errorf("compile secret %q: %w", s.Name, err)
		}
		out.Type = &tlspb.Secret_GenericSecret{GenericSecret: &tlspb.GenericSecret{Secret: src}}

	case model.SecretTLSCertificate:
		chain, err := inlineFromB64(cfg.CertificateChainB64)
		if err != nil {
			return cache.BuiltResource{}, fmt.Errorf("compile secret %q: certificate_chain: %w", s.Name, err)
		}
		key, err := inlineFromB64(cfg.PrivateKeyB64)
		if err != nil {
			return cache.BuiltResource{}, fmt.Errorf("compile secret %q: private_key: %w", s.Name, err)
		}
		out.Type = &tlspb.Secret_TlsCertificate{TlsCertificate: &tlspb.TlsCertificate{
			CertificateChain: chain,
			PrivateKey:       key,
		}}

	case model.SecretCertificateValidation:
		ca, err := inlineFromB64(cfg.TrustedCAB64)
		if err != nil {
			return cache.BuiltResource{}, fmt.Errorf("compile secret %q: trusted_ca: %w", s.Name, err)
		}
		out.Type = &tlspb.Secret_ValidationContext{ValidationContext: &tlspb.CertificateValidationContext{
			TrustedCa:                 ca,
			MatchTypedSubjectAltNames: subjectAltNameMatchers(cfg.VerifySubjectAltName),
		}}

	case model.SecretSessionTicketKeys:
		raw, err := base64.StdEncoding.DecodeString(cfg.SessionTicketKeysB64)
		if err != nil {
			return cache.BuiltResource{}, fmt.Errorf("compile secret %q: session_ticket_keys: %w", s.Name, err)
		}
		out.Type = &tlspb.Secret_SessionTicketKeys{SessionTicketKeys: &tlspb.TlsSessionTicketKeys{
			Keys: []*corepb.DataSource{{Specifier: &corepb.DataSource_InlineBytes{InlineBytes: raw}}},
		}}

	default:
		return cache.BuiltResource{}, fmt.Errorf("compile secret %q: unknown secret type %q", s.Name, s.Type)
	}

	return built(s.Name, out)
}

func inlineFromB64(b64 string) (*corepb.DataSource, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return &corepb.DataSource{Specifier: &corepb.DataSource_InlineBytes{InlineBytes: raw}}, nil
}

func subjectAltNameMatchers(sans []string) []*tlspb.SubjectAltNameMatcher {
	if len(sans) == 0 {
		return nil
	}
	out := make([]*tlspb.SubjectAltNameMatcher, 0, len(sans))
	for _, san := range sans {
		out = append(out, &tlspb.SubjectAltNameMatcher{
			SanType: tlspb.SubjectAltNameMatcher_DNS,
			Matcher: &matcherpb.StringMatcher{
				MatchPattern: &matcherpb.StringMatcher_Exact{Exact: san},
			},
		})
	}
	return out
}
