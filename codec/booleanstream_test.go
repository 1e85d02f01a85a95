// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = i%3 == 0 || i%7 == 1
	}
	return out
}

func TestBooleanStreamSymmetry(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 9, 64, 1000} {
		t.Run(fmt.Sprintf("%d bits", n), func(t *testing.T) {
			want := pattern(n)

			bs := NewBooleanStream()
			for _, v := range want {
				bs.WriteBoolean(v)
			}
			size := bs.MarshalledSize()

			buf := new(bytes.Buffer)
			require.NoError(t, bs.Marshal(buf))
			assert.Equal(t, size, buf.Len())

			in := NewBooleanStream()
			require.NoError(t, in.Unmarshal(buf))
			assert.Zero(t, buf.Len())

			got := make([]bool, n)
			for i := range got {
				v, err := in.ReadBoolean()
				require.NoError(t, err)
				got[i] = v
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestBooleanStreamRereadAfterMarshal(t *testing.T) {
	bs := NewBooleanStream()
	bs.WriteBoolean(true)
	bs.WriteBoolean(false)
	bs.WriteBoolean(true)

	require.NoError(t, bs.Marshal(new(bytes.Buffer)))

	for _, want := range []bool{true, false, true} {
		got, err := bs.ReadBoolean()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestBooleanStreamHeaderSizes(t *testing.T) {
	tests := []struct {
		bits   int
		header []byte
	}{
		{8 * 63, []byte{63}},
		{8 * 64, []byte{0xC0, 64}},
		{8 * 300, []byte{0x80, 0x01, 0x2C}},
	}

	for _, tt := range tests {
		bs := NewBooleanStream()
		for i := 0; i < tt.bits; i++ {
			bs.WriteBoolean(true)
		}
		buf := new(bytes.Buffer)
		require.NoError(t, bs.Marshal(buf))
		assert.Equal(t, tt.header, buf.Bytes()[:len(tt.header)])
		assert.Equal(t, len(tt.header)+tt.bits/8, buf.Len())
	}
}

func TestBooleanStreamUnderflow(t *testing.T) {
	bs := NewBooleanStream()
	bs.WriteBoolean(true)

	buf := new(bytes.Buffer)
	require.NoError(t, bs.Marshal(buf))

	in := NewBooleanStream()
	require.NoError(t, in.Unmarshal(buf))
	for i := 0; i < 8; i++ {
		_, err := in.ReadBoolean()
		require.NoError(t, err)
	}
	_, err := in.ReadBoolean()
	assert.ErrorIs(t, err, ErrBooleanStreamUnderflow)
}

func TestBooleanStreamTruncatedInput(t *testing.T) {
	in := NewBooleanStream()
	err := in.Unmarshal(bytes.NewReader([]byte{3, 0xFF}))
	assert.Error(t, err)
}
