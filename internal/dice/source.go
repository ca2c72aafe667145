package dice

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"math/big"
	"sync"

	"go.uber.org/zap"
)

// Source is the randomness provider for dice rolls.
//
// Implementations MUST be safe for concurrent use and MUST be backed by a
// cryptographically secure generator. Fairness is a game-integrity guarantee:
// there is no non-secure fallback, so an unavailable secure source is fatal.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// cryptoSource implements Source with a direct crypto/rand draw per call.
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
//
// Postcondition: Every value returned by Intn is uniformly distributed in [0, n).
func NewCryptoSource() Source {
	return &cryptoSource{}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Precondition: n > 0. Panics with "dice: Intn called with n <= 0" if n <= 0.
// Panics with "dice: crypto/rand failure: <err>" if crypto/rand fails.
func (c *cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

// PooledSource is a Source that amortizes crypto/rand reads by keeping a
// pre-filled pool of secure 64-bit values. When the pool depth falls below
// the low-water mark a refill runs in the background; the triggering caller
// is never blocked. An exhausted pool falls back to a direct secure draw.
//
// Invariant: every value handed out originates from crypto/rand, pooled or not.
type PooledSource struct {
	mu        sync.Mutex
	pool      []uint64
	size      int
	lowWater  int
	refilling bool

	logger *zap.Logger
}

// NewPooledSource creates a PooledSource and synchronously fills its pool.
//
// Precondition: size >= 1; 0 <= lowWater < size; logger must be non-nil.
// Panics if the secure source is unavailable at startup: a process that
// cannot draw secure randomness cannot fairly resolve rolls.
func NewPooledSource(size, lowWater int, logger *zap.Logger) *PooledSource {
	if size < 1 {
		panic("dice: pool size must be >= 1")
	}
	if lowWater < 0 || lowWater >= size {
		panic("dice: pool low-water mark must be in [0, size)")
	}
	s := &PooledSource{
		pool:     make([]uint64, 0, size),
		size:     size,
		lowWater: lowWater,
		logger:   logger,
	}
	batch, err := drawBatch(size)
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	s.pool = append(s.pool, batch...)
	return s
}

// Intn returns a cryptographically secure random int in [0, n), served from
// the pool in amortized O(1).
//
// Precondition: n > 0. Panics with "dice: Intn called with n <= 0" if n <= 0.
func (s *PooledSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	// Rejection sampling keeps the distribution uniform: values at or above
	// the largest multiple of n are redrawn.
	bound := math.MaxUint64 - math.MaxUint64%uint64(n)
	for {
		v, ok := s.take()
		if !ok {
			// Pool exhausted: direct secure draw, already uniform.
			return (&cryptoSource{}).Intn(n)
		}
		if v < bound {
			return int(v % uint64(n))
		}
	}
}

// Depth returns the current number of pooled values. Intended for tests and
// observability.
func (s *PooledSource) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// take pops one pooled value, scheduling a background refill when the pool
// runs low. Returns ok=false when the pool is empty.
func (s *PooledSource) take() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pool) <= s.lowWater && !s.refilling {
		s.refilling = true
		go s.refill()
	}
	if len(s.pool) == 0 {
		return 0, false
	}
	v := s.pool[len(s.pool)-1]
	s.pool = s.pool[:len(s.pool)-1]
	return v, true
}

// refill tops the pool back up to its configured size.
func (s *PooledSource) refill() {
	s.mu.Lock()
	need := s.size - len(s.pool)
	s.mu.Unlock()

	if need <= 0 {
		s.mu.Lock()
		s.refilling = false
		s.mu.Unlock()
		return
	}

	batch, err := drawBatch(need)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refilling = false
	if err != nil {
		// Callers fall back to direct draws, which will surface the failure.
		s.logger.Error("random pool refill failed", zap.Error(err))
		return
	}
	if room := s.size - len(s.pool); room < len(batch) {
		batch = batch[:room]
	}
	s.pool = append(s.pool, batch...)
	s.logger.Debug("random pool refilled",
		zap.Int("added", len(batch)),
		zap.Int("depth", len(s.pool)),
	)
}

// drawBatch reads count secure 64-bit values in a single crypto/rand call.
func drawBatch(count int) ([]uint64, error) {
	buf := make([]byte, count*8)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := range out {
		out[i] = binary.BigEndian.Uint64(buf[i*8:])
	}
	return out, nil
}
