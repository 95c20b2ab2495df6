package noise

// Stream is the world's shared seeded random sequence. Peers that seed it
// identically and draw from it in the same order observe the same values, so
// every caller must keep its draw order fixed.
type Stream struct {
	state uint64
	seed  int64
}

func NewStream(seed int64) *Stream {
	s := &Stream{}
	s.Reset(seed)
	return s
}

// Reset reseeds the stream.
func (s *Stream) Reset(seed int64) {
	state := uint64(seed) ^ 0x9e3779b97f4a7c15
	if state == 0 {
		state = 0x9e3779b97f4a7c15
	}
	s.state = state
	s.seed = seed
}

func (s *Stream) Seed() int64 {
	return s.seed
}

func (s *Stream) next() uint64 {
	s.state ^= s.state << 7
	s.state ^= s.state >> 9
	s.state ^= s.state << 8
	return s.state
}

// Fraction returns a value in [0, 1).
func (s *Stream) Fraction() float64 {
	return float64(s.next()>>11) / (1 << 53)
}

// RandRange returns an integer in [min, max].
func (s *Stream) RandRange(min, max int) int {
	if max <= min {
		return min
	}
	span := max - min + 1
	v := int(s.Fraction() * float64(span))
	if v >= span {
		v = span - 1
	}
	return min + v
}

// FRandRange returns a float in [min, max).
func (s *Stream) FRandRange(min, max float64) float64 {
	return min + (max-min)*s.Fraction()
}
