package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookKey_Bytes(t *testing.T) {
	key := BookKey{
		Class: ClassKey{Market: 0x01020304, Outcome: 0x0506},
		Side:  Bid,
	}

	b := key.Bytes()
	require.Len(t, b, 7)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x01}, b)

	decoded, ok := BookKeyFromBytes(b)
	require.True(t, ok)
	assert.Equal(t, key, decoded)
}

func TestBookKeyFromBytes_Invalid(t *testing.T) {
	_, ok := BookKeyFromBytes([]byte{1, 2, 3})
	assert.False(t, ok)

	// Side byte out of range.
	_, ok = BookKeyFromBytes([]byte{0, 0, 0, 1, 0, 0, 9})
	assert.False(t, ok)
}

func TestLevelKey_Bytes(t *testing.T) {
	key := LevelKey{
		Book: BookKey{Class: ClassKey{Market: 7, Outcome: 2}, Side: Ask},
		Tick: 50,
	}

	b := key.Bytes()
	require.Len(t, b, 8)
	assert.Equal(t, key.Book.Bytes(), b[:7])
	assert.Equal(t, byte(50), b[7])
}

func TestOrderKey_Bytes(t *testing.T) {
	key := OrderKey{
		Book: BookKey{Class: ClassKey{Market: 7, Outcome: 2}, Side: Ask},
		ID:   0x0102030405060708,
	}

	b := key.Bytes()
	require.Len(t, b, 15)
	assert.Equal(t, key.Book.Bytes(), b[:7])
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, b[7:])
}

func TestKeys_Distinct(t *testing.T) {
	// The packed forms of the two sides of one class must differ.
	class := ClassKey{Market: 1, Outcome: 0}
	askKey := BookKey{Class: class, Side: Ask}.Bytes()
	bidKey := BookKey{Class: class, Side: Bid}.Bytes()
	assert.NotEqual(t, askKey, bidKey)
}
