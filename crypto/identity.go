package crypto

import (
	"encoding/hex"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// IdentityHash is the keccak256 digest of an off-ledger identity document. The
// ledger never stores the document itself, only the digest.
type IdentityHash [32]byte

// HashIdentity derives the canonical identity hash for the supplied document
// bytes.
func HashIdentity(document []byte) IdentityHash {
	var id IdentityHash
	copy(id[:], ethcrypto.Keccak256(document))
	return id
}

// ParseIdentityHash decodes a hex-encoded identity hash, accepting an optional
// 0x prefix.
func ParseIdentityHash(s string) (IdentityHash, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return IdentityHash{}, fmt.Errorf("invalid identity hash: %w", err)
	}
	if len(raw) != 32 {
		return IdentityHash{}, fmt.Errorf("identity hash must be 32 bytes, got %d", len(raw))
	}
	var id IdentityHash
	copy(id[:], raw)
	return id, nil
}

func (h IdentityHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is unset.
func (h IdentityHash) IsZero() bool {
	return h == IdentityHash{}
}
