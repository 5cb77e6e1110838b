package throttle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	_, err := New(Config{TotalNPerSec: 0, TotalBurst: 1, EachKeyNPerSec: 1, EachKeyBurst: 1})
	require.Error(t, err)
	_, err = New(Config{TotalNPerSec: 5, TotalBurst: 1, EachKeyNPerSec: 1, EachKeyBurst: 1})
	require.Error(t, err)
	_, err = New(Config{TotalNPerSec: 1, TotalBurst: 1, EachKeyNPerSec: 2, EachKeyBurst: 1})
	require.Error(t, err)
}

func TestAllowPerKey(t *testing.T) {
	th, err := New(Config{
		TotalNPerSec:   1,
		TotalBurst:     100,
		EachKeyNPerSec: 1,
		EachKeyBurst:   2,
	})
	require.NoError(t, err)

	require.True(t, th.Allow("203.0.113.7"))
	require.True(t, th.Allow("203.0.113.7"))
	require.False(t, th.Allow("203.0.113.7"))

	// other keys keep their own budget
	require.True(t, th.Allow("198.51.100.1"))
}

func TestAllowTotal(t *testing.T) {
	th, err := New(Config{
		TotalNPerSec:   1,
		TotalBurst:     2,
		EachKeyNPerSec: 1,
		EachKeyBurst:   10,
	})
	require.NoError(t, err)

	require.True(t, th.Allow("a"))
	require.True(t, th.Allow("b"))
	require.False(t, th.Allow("c"))
}

func TestMaxKeysEvicts(t *testing.T) {
	th, err := New(Config{
		TotalNPerSec:   1,
		TotalBurst:     100,
		EachKeyNPerSec: 1,
		EachKeyBurst:   1,
		MaxKeys:        1,
	})
	require.NoError(t, err)

	require.True(t, th.Allow("a"))
	require.False(t, th.Allow("a"))
	require.True(t, th.Allow("b"))
	require.Equal(t, 1, th.keys.Len())
}
