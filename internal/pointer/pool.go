// Package pointer manages the bounded set of pointer tokens. Each token owns
// one simulated cursor/target body pair.
package pointer

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned by Checkout when no token is free.
	ErrEmpty = errors.New("pointer: pool exhausted")
	// ErrNotHeld is returned when releasing a token that is not checked out.
	ErrNotHeld = errors.New("pointer: token not checked out")
)

// Pool hands out tokens in [0, size) first-in first-out.
type Pool struct {
	free []int
	held []bool
}

// NewPool returns a pool with every token in [0, size) available.
func NewPool(size int) *Pool {
	if size < 0 {
		size = 0
	}
	p := &Pool{
		free: make([]int, 0, size),
		held: make([]bool, size),
	}
	for i := 0; i < size; i++ {
		p.free = append(p.free, i)
	}
	return p
}

// Checkout removes and returns the oldest free token.
func (p *Pool) Checkout() (int, error) {
	if len(p.free) == 0 {
		return 0, ErrEmpty
	}
	token := p.free[0]
	p.free = p.free[1:]
	p.held[token] = true
	return token, nil
}

// Release returns token to the pool.
func (p *Pool) Release(token int) error {
	if token < 0 || token >= len(p.held) || !p.held[token] {
		return fmt.Errorf("release %d: %w", token, ErrNotHeld)
	}
	p.held[token] = false
	p.free = append(p.free, token)
	return nil
}

// Size is the total number of tokens.
func (p *Pool) Size() int {
	return len(p.held)
}

// Available reports the number of free tokens.
func (p *Pool) Available() int {
	return len(p.free)
}

// Held reports whether token is checked out.
func (p *Pool) Held(token int) bool {
	return token >= 0 && token < len(p.held) && p.held[token]
}
