package pricing

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultMin = 20
	DefaultMax = 69
)

// Pricer produces the estimated price shown to the customer at creation.
// It is an estimate only; nothing downstream recalculates it.
type Pricer interface {
	Estimate(items []string) int
}

type RandomPricer struct {
	mu  sync.Mutex
	rnd *rand.Rand
	min int
	max int
}

func NewRandomPricer(min, max int, seed int64) (*RandomPricer, error) {
	if min < 0 || max < min {
		return nil, fmt.Errorf("некорректный диапазон цен [%d, %d]", min, max)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomPricer{
		rnd: rand.New(rand.NewSource(seed)),
		min: min,
		max: max,
	}, nil
}

func (p *RandomPricer) Estimate([]string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min + p.rnd.Intn(p.max-p.min+1)
}

type FixedPricer int

func (p FixedPricer) Estimate([]string) int {
	return int(p)
}
