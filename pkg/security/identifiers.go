package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// NewNonce returns 128 random bits as uppercase hex
func NewNonce() string {
	id := uuid.New()
	return strings.ToUpper(fmt.Sprintf("%x", id[:]))
}

const orderIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// orderIDSpace is the number of IDs of the form [A-Z][A-Z0-9]{3}
const orderIDSpace = 26 * 36 * 36 * 36

// OrderIDGenerator issues order IDs of the form [A-Z][A-Z0-9]{3}. IDs are
// monotonic per partner and wrap around after the last value.
type OrderIDGenerator struct {
	mu   sync.Mutex
	next map[string]int
}

// NewOrderIDGenerator creates a generator with random per-partner start
// values
func NewOrderIDGenerator() *OrderIDGenerator {
	return &OrderIDGenerator{next: make(map[string]int)}
}

// Next returns the next order ID for partnerID
func (g *OrderIDGenerator) Next(partnerID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.next[partnerID]
	if !ok {
		start, err := rand.Int(rand.Reader, big.NewInt(orderIDSpace))
		if err != nil {
			return "", fmt.Errorf("failed to seed order ID: %w", err)
		}
		n = int(start.Int64())
	}
	g.next[partnerID] = (n + 1) % orderIDSpace

	return FormatOrderID(n), nil
}

// FormatOrderID renders the n-th order ID
func FormatOrderID(n int) string {
	n %= orderIDSpace
	var id [4]byte
	for i := 3; i > 0; i-- {
		id[i] = orderIDAlphabet[n%36]
		n /= 36
	}
	id[0] = orderIDAlphabet[10+n]
	return string(id[:])
}
