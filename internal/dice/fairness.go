package dice

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
)

var ErrSeedMismatch = errors.New("server seed does not match commitment")

const seedBytes = 32

func GenerateSeed() (string, error) {
	bytes := make([]byte, seedBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate seed: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// HashSeed is the commitment published before any roll uses the seed.
func HashSeed(serverSeed string) string {
	hash := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(hash[:])
}

// Roll derives the outcome for one nonce. The result is in [0, 99.99] with two decimals.
func Roll(serverSeed, clientSeed string, nonce int64) float64 {
	h := hmac.New(sha256.New, []byte(serverSeed))
	h.Write([]byte(fmt.Sprintf("dice:%s:%d", clientSeed, nonce)))
	sum := h.Sum(nil)

	f := float64(binary.BigEndian.Uint32(sum[:4])) / float64(1<<32)
	return math.Floor(f*10000) / 100
}

// Verify recomputes a roll from a revealed server seed after checking it against its commitment.
func Verify(serverSeed, committedHash, clientSeed string, nonce int64) (float64, error) {
	if committedHash != "" && subtle.ConstantTimeCompare([]byte(HashSeed(serverSeed)), []byte(committedHash)) != 1 {
		return 0, ErrSeedMismatch
	}
	return Roll(serverSeed, clientSeed, nonce), nil
}
