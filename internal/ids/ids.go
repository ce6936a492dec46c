package ids

import (
	"crypto/rand"
	"encoding/hex"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
)

const (
	batchPrefix     = "APR"
	maxBatchDocPart = 40
	tokenBlockBytes = 16
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// BatchID derives an approval batch identifier from a document id.
// It is collision resistant but not secret; tokens carry the authorization.
func BatchID(documentID string) string {
	doc := sanitize(documentID)
	if doc == "" {
		return batchPrefix + "-" + New()
	}
	return batchPrefix + "-" + doc + "-" + New()
}

// Token returns an unguessable bearer credential made of two random hex blocks.
func Token() (string, error) {
	var b strings.Builder
	b.Grow(tokenBlockBytes * 4)
	for i := 0; i < 2; i++ {
		block := make([]byte, tokenBlockBytes)
		if _, err := rand.Read(block); err != nil {
			return "", err
		}
		b.WriteString(hex.EncodeToString(block))
	}
	return b.String(), nil
}

func sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		if b.Len() >= maxBatchDocPart {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}
