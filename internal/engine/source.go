package engine

import (
	"math"

	"github.com/google/uuid"
)

// Seeds identifies one run's random stream.
type Seeds struct {
	Server string `json:"server"`
	Client string `json:"client"`
}

// RandomSeeds returns a fresh seed pair for a new run.
func RandomSeeds() Seeds {
	return Seeds{Server: uuid.NewString(), Client: uuid.NewString()}
}

// Source is the run's random stream. It is not safe for concurrent use.
// Every draw advances the cursor, so a Source rebuilt from State()
// continues exactly where the original stopped.
type Source struct {
	seeds  Seeds
	nonce  uint64
	stream *stream
}

// NewSource opens the stream for seeds/nonce at the given byte cursor.
func NewSource(seeds Seeds, nonce, cursor uint64) *Source {
	return &Source{seeds: seeds, nonce: nonce, stream: newStream(seeds, nonce, cursor)}
}

// Float64 returns the next float in [0, 1).
func (s *Source) Float64() float64 {
	return s.stream.float()
}

// Intn returns an int in [0, n). n <= 0 yields 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v := int(math.Floor(s.Float64() * float64(n)))
	if v >= n {
		v = n - 1
	}
	return v
}

// Shuffle permutes n elements with Fisher-Yates.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := s.Intn(i + 1)
		swap(i, j)
	}
}

// State reports what is needed to rebuild the stream.
func (s *Source) State() (Seeds, uint64, uint64) {
	return s.seeds, s.nonce, s.stream.cursor
}
