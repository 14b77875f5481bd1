package signaling

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// codeAlphabet excludes visually confusable characters: I, O, 0, 1.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// generateRoomCode returns a fresh six-character room code drawn
// uniformly from codeAlphabet.
func generateRoomCode() (string, error) {
	var b strings.Builder
	b.Grow(codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))

	for range codeLength {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// normalizeRoomCode canonicalizes user-supplied room codes to uppercase,
// matching the case-insensitive-on-input rule.
func normalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
