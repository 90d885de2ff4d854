// Package idgen provides deterministic short-id derivation and random id
// generation shared by the model/platform/xds packages.
package idgen

import (
	"encoding/base32"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

var shortIDEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ShortID truncates a deterministic hash of id to n alphanumeric characters,
// used for synthetic cluster/route/listener naming. Collisions are possible
// and intentionally not disambiguated here.
func ShortID(id string, n int) string {
	sum := xxhash.Sum64String(id)
	encoded := strings.ToLower(shortIDEncoding.EncodeToString(uint64ToBytes(sum)))
	encoded = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, encoded)
	if len(encoded) >= n {
		return encoded[:n]
	}
	for len(encoded) < n {
		encoded += "0"
	}
	return encoded
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// New returns a fresh random identifier, used for entity ids and ADS nonces.
func New() string {
	return uuid.NewString()
}

// PortFromDomain hashes domain into [20000, 30000) for OpenAPI isolation-mode
// listener port selection. Collisions are not checked.
func PortFromDomain(domain string) uint32 {
	sum := xxhash.Sum64String(domain)
	return 20000 + uint32(sum%10000)
}
