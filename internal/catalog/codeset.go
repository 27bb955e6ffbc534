package catalog

// packedDigits is the longest digit code that fits the packed form:
// 10^17 < 2^57, leaving the top bits for the length.
const packedDigits = 17

// CodeSet is a compact set of product codes. Digit-only codes of up to 17
// digits are stored as a single uint64 that keeps the length, so "0042" and
// "42" stay distinct. Anything else falls back to a string set.
type CodeSet struct {
	packed map[uint64]struct{}
	other  map[string]struct{}
}

func NewCodeSet(sizeHint int) *CodeSet {
	return &CodeSet{
		packed: make(map[uint64]struct{}, sizeHint),
		other:  make(map[string]struct{}),
	}
}

func packCode(code string) (uint64, bool) {
	if len(code) == 0 || len(code) > packedDigits {
		return 0, false
	}
	var v uint64
	for i := 0; i < len(code); i++ {
		c := code[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + uint64(c-'0')
	}
	return uint64(len(code))<<57 | v, true
}

func (s *CodeSet) Add(code string) {
	if key, ok := packCode(code); ok {
		s.packed[key] = struct{}{}
		return
	}
	s.other[code] = struct{}{}
}

func (s *CodeSet) Contains(code string) bool {
	if s == nil {
		return false
	}
	if key, ok := packCode(code); ok {
		_, found := s.packed[key]
		return found
	}
	_, found := s.other[code]
	return found
}

// AddIfAbsent adds code and reports whether it was new.
func (s *CodeSet) AddIfAbsent(code string) bool {
	if s.Contains(code) {
		return false
	}
	s.Add(code)
	return true
}

func (s *CodeSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.packed) + len(s.other)
}
