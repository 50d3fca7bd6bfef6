package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
	"strconv"
)

const blockSize = sha256.Size

// stream is the byte sequence behind a Source. Block k is
// HMAC-SHA256(server, "client:nonce:k"); bytes are read in order and the
// cursor counts bytes consumed since block 0.
type stream struct {
	mac    hash.Hash
	prefix []byte
	cursor uint64

	block  [blockSize]byte
	loaded uint64
	filled bool
}

func newStream(seeds Seeds, nonce, cursor uint64) *stream {
	prefix := make([]byte, 0, len(seeds.Client)+24)
	prefix = append(prefix, seeds.Client...)
	prefix = append(prefix, ':')
	prefix = strconv.AppendUint(prefix, nonce, 10)
	prefix = append(prefix, ':')
	return &stream{
		mac:    hmac.New(sha256.New, []byte(seeds.Server)),
		prefix: prefix,
		cursor: cursor,
	}
}

func (s *stream) next() byte {
	idx := s.cursor / blockSize
	if !s.filled || idx != s.loaded {
		s.load(idx)
	}
	b := s.block[s.cursor%blockSize]
	s.cursor++
	return b
}

func (s *stream) load(idx uint64) {
	s.mac.Reset()
	s.mac.Write(strconv.AppendUint(append([]byte(nil), s.prefix...), idx, 10))
	s.mac.Sum(s.block[:0])
	s.loaded, s.filled = idx, true
}

// float reads four bytes as base-256 digits of a fraction in [0, 1).
func (s *stream) float() float64 {
	f, scale := 0.0, 1.0/256
	for i := 0; i < 4; i++ {
		f += float64(s.next()) * scale
		scale /= 256
	}
	return f
}

// Floats returns count floats starting at cursor.
func Floats(seeds Seeds, nonce, cursor uint64, count int) []float64 {
	s := newStream(seeds, nonce, cursor)
	out := make([]float64, count)
	for i := range out {
		out[i] = s.float()
	}
	return out
}
