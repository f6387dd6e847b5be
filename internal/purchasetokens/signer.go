package purchasetokens

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const minSecretBytes = 16

// Signer derives opaque purchase tokens from commitment identities. The same
// commitment always yields the same token, so re-issuing is idempotent.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("purchase token secret must be at least %d bytes", minSecretBytes)
	}
	return &Signer{secret: []byte(secret)}, nil
}

func (s *Signer) Token(commitmentID uuid.UUID) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte("nyp-purchase:" + commitmentID.String()))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// HashToken is the only form of a token that is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
