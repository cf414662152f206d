package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameFromBytesValidatesLength(t *testing.T) {
	_, err := FrameFromBytes(2, 2, make([]byte, 11))
	assert.Error(t, err)

	f, err := FrameFromBytes(2, 2, make([]byte, 12))
	require.NoError(t, err)
	assert.Equal(t, 12, f.Size())
	assert.Equal(t, 6, f.Stride())
}

func TestFrameCloneIsIndependent(t *testing.T) {
	f := NewFrame(2, 2)
	f.Set(1, 1, 10, 20, 30)

	c := f.Clone()
	c.Set(1, 1, 1, 2, 3)

	b, g, r := f.At(1, 1)
	assert.Equal(t, [3]byte{10, 20, 30}, [3]byte{b, g, r})
	assert.True(t, f.SameShape(c))
}

func TestSameShape(t *testing.T) {
	f := NewFrame(4, 3)
	assert.True(t, f.SameShape(NewFrame(4, 3)))
	assert.False(t, f.SameShape(NewFrame(3, 4)))
	assert.False(t, f.SameShape(nil))
}
