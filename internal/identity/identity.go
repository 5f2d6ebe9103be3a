package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leshachaplin/capirelay/internal/domain"
)

// IDLength is the number of hex characters kept from the digest (128 bits).
const IDLength = 32

// Seed is the coarse, non-reversible context an id is derived from.
type Seed struct {
	Timestamp   time.Time
	Fingerprint string
}

// SeedFor builds a seed from the first durable identifier of the visitor.
// The fingerprint is only mixed into a digest, it never leaves the process.
func SeedFor(ts time.Time, u domain.RawUserData) Seed {
	var fp string
	for _, v := range []string{u.Email, u.Phone, u.ExternalID, u.FBP, u.ScCookie1, u.TTP} {
		if v = strings.TrimSpace(v); v != "" {
			fp = strings.ToLower(v)
			break
		}
	}
	return Seed{Timestamp: ts, Fingerprint: fp}
}

type Generator struct {
	entropy func() string
}

func NewGenerator() *Generator {
	return &Generator{entropy: uuid.NewString}
}

// Generate passes an existing id through untouched so the pixel and server
// calls stay deduplicatable; otherwise it derives a fresh one.
func (g *Generator) Generate(eventName string, seed Seed, existingID *string) domain.EventID {
	if existingID != nil && strings.TrimSpace(*existingID) != "" {
		return domain.EventID(*existingID)
	}

	ts := seed.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	h := sha256.New()
	h.Write([]byte(eventName))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(ts.UnixMilli(), 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(seed.Fingerprint))
	h.Write([]byte{'|'})
	h.Write([]byte(g.entropy()))

	return domain.EventID(hex.EncodeToString(h.Sum(nil))[:IDLength])
}

var defaultGenerator = NewGenerator()

func GenerateEventID(eventName string, seed Seed, existingID *string) domain.EventID {
	return defaultGenerator.Generate(eventName, seed, existingID)
}
