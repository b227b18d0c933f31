package pointer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_CheckoutOrderAndExhaustion(t *testing.T) {
	pool := NewPool(3)

	for want := 0; want < 3; want++ {
		token, err := pool.Checkout()
		require.NoError(t, err)
		assert.Equal(t, want, token)
	}

	_, err := pool.Checkout()
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Equal(t, 0, pool.Available())
}

func TestPool_ReleaseRequiresCheckout(t *testing.T) {
	pool := NewPool(2)

	assert.ErrorIs(t, pool.Release(0), ErrNotHeld)
	assert.ErrorIs(t, pool.Release(5), ErrNotHeld)

	token, err := pool.Checkout()
	require.NoError(t, err)
	require.NoError(t, pool.Release(token))
	assert.ErrorIs(t, pool.Release(token), ErrNotHeld)
	assert.Equal(t, 2, pool.Available())
}

func TestPool_ReleasedTokensQueueBehindFreeOnes(t *testing.T) {
	pool := NewPool(2)
	first, _ := pool.Checkout()
	require.NoError(t, pool.Release(first))

	next, err := pool.Checkout()
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

func TestPool_ConservesTokens(t *testing.T) {
	const size = 16
	pool := NewPool(size)
	rng := rand.New(rand.NewSource(42))
	var out []int

	for step := 0; step < 10000; step++ {
		if len(out) > 0 && rng.Intn(2) == 0 {
			i := rng.Intn(len(out))
			require.NoError(t, pool.Release(out[i]))
			out = append(out[:i], out[i+1:]...)
		} else if token, err := pool.Checkout(); err == nil {
			for _, held := range out {
				require.NotEqual(t, held, token, "token checked out twice")
			}
			out = append(out, token)
		} else {
			require.ErrorIs(t, err, ErrEmpty)
			require.Len(t, out, size)
		}
		require.Equal(t, size, len(out)+pool.Available())
	}
}

func TestPool_ZeroSize(t *testing.T) {
	pool := NewPool(0)
	_, err := pool.Checkout()
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Equal(t, 0, pool.Size())
}
