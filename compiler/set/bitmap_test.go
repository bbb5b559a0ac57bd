package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmapBasic(t *testing.T) {
	var s Bitmap

	assert.False(t, s.IsSet(3))

	s.Set(3)
	s.Set(70)
	s.Set(130)

	assert.True(t, s.IsSet(3))
	assert.True(t, s.IsSet(70))
	assert.False(t, s.IsSet(71))
	assert.Equal(t, 3, s.Size())

	var got []int
	s.Range(func(i int) bool {
		got = append(got, i)
		return true
	})

	assert.Equal(t, []int{3, 70, 130}, got)

	s.Clear(70)
	assert.False(t, s.IsSet(70))
	assert.Equal(t, 2, s.Size())
}

func TestBitmapAndNotAssign(t *testing.T) {
	a := MakeBitmap(0)
	a.FillSet(0, 10)

	m := MakeBitmap(0)
	m.Set(2)
	m.Set(4)

	a.AndNot(m)
	assert.Equal(t, 8, a.Size())
	assert.False(t, a.IsSet(4))

	a.And(m)
	assert.Equal(t, 0, a.Size())

	c := MakeBitmap(0)
	c.Assign(m)
	c.Set(100)
	assert.False(t, m.IsSet(100))

	a.Assign(c)
	assert.True(t, a.Equal(c))

	var empty Bitmap
	assert.True(t, empty.Equal(MakeBitmap(128)))
}
