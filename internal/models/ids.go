package models

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

type IDGenerator interface {
	NewID() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SequenceGenerator hands out prefix-1, prefix-2, ... and is used where ids must be predictable.
type SequenceGenerator struct {
	Prefix string
	n      atomic.Int64
}

func (g *SequenceGenerator) NewID() string {
	return fmt.Sprintf("%s-%d", g.Prefix, g.n.Add(1))
}
