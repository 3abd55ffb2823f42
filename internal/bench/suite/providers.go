package suite

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Provider produces a fresh value for a placeholder on each Format call.
// Implementations must be safe for concurrent use.
type Provider interface {
	Next() (any, error)
}

type ProviderFunc func() (any, error)

func (f ProviderFunc) Next() (any, error) { return f() }

// Func adapts a value-returning function that cannot fail.
func Func(f func() any) Provider {
	return ProviderFunc(func() (any, error) { return f(), nil })
}

func Static(v any) Provider {
	return ProviderFunc(func() (any, error) { return v, nil })
}

type sequence struct {
	next atomic.Int64
}

// Sequence yields start, start+1, ... across all callers.
func Sequence(start int64) Provider {
	s := &sequence{}
	s.next.Store(start)
	return s
}

func (s *sequence) Next() (any, error) {
	return s.next.Add(1) - 1, nil
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(seed uint64) *lockedRand {
	if seed == 0 {
		return &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	}
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed))}
}

func (l *lockedRand) intN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// RandomInt yields integers uniformly in [lo, hi]. A zero seed is random.
func RandomInt(lo, hi int, seed uint64) Provider {
	if hi < lo {
		lo, hi = hi, lo
	}
	r := newLockedRand(seed)
	return ProviderFunc(func() (any, error) {
		return lo + r.intN(hi-lo+1), nil
	})
}

func RandomChoice(seed uint64, values ...any) Provider {
	r := newLockedRand(seed)
	return ProviderFunc(func() (any, error) {
		if len(values) == 0 {
			return nil, nil
		}
		return values[r.intN(len(values))], nil
	})
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func RandomString(length int, seed uint64) Provider {
	r := newLockedRand(seed)
	return ProviderFunc(func() (any, error) {
		b := make([]byte, length)
		for i := range b {
			b[i] = alphanumeric[r.intN(len(alphanumeric))]
		}
		return string(b), nil
	})
}

func UUID() Provider {
	return ProviderFunc(func() (any, error) {
		return uuid.NewString(), nil
	})
}
