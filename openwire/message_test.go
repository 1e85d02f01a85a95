// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package openwire_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/absmach/openwire/openwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitiveMapRoundTrip(t *testing.T) {
	want := map[string]any{
		"null":   nil,
		"bool":   true,
		"byte":   int8(-3),
		"char":   openwire.Char('Z'),
		"short":  int16(-300),
		"int":    int32(70000),
		"long":   int64(1) << 50,
		"float":  float32(1.5),
		"double": 2.25,
		"string": "héllo",
		"big":    strings.Repeat("x", 70000),
		"bytes":  []byte{1, 2, 3},
		"map":    map[string]any{"inner": int32(1)},
		"list":   []any{int32(1), "two", nil},
	}

	b, err := openwire.MarshalPrimitiveMap(want)
	require.NoError(t, err)
	got, err := openwire.UnmarshalPrimitiveMap(b)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPrimitiveMapIntWidening(t *testing.T) {
	b, err := openwire.MarshalPrimitiveMap(map[string]any{"small": 5, "large": 1 << 40})
	require.NoError(t, err)
	got, err := openwire.UnmarshalPrimitiveMap(b)
	require.NoError(t, err)
	assert.Equal(t, int32(5), got["small"])
	assert.Equal(t, int64(1<<40), got["large"])
}

func TestPrimitiveMapErrors(t *testing.T) {
	_, err := openwire.MarshalPrimitiveMap(map[string]any{"bad": struct{}{}})
	assert.ErrorIs(t, err, openwire.ErrUnsupportedValue)

	_, err = openwire.UnmarshalPrimitiveMap([]byte{0, 0, 0, 1, 0, 1, 'k', 99})
	assert.ErrorIs(t, err, openwire.ErrUnknownPrimitive)

	_, err = openwire.UnmarshalPrimitiveMap([]byte{0, 0, 0, 0, 7})
	assert.ErrorIs(t, err, openwire.ErrTrailingBytes)

	got, err := openwire.UnmarshalPrimitiveMap(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTextMessageCompression(t *testing.T) {
	body := strings.Repeat("compressible ", 200)
	msg := &openwire.TextMessage{}
	msg.SetText(body)
	plain := len(msg.Content)

	require.NoError(t, msg.Compress())
	assert.True(t, msg.Compressed)
	assert.Less(t, len(msg.Content), plain)

	got, err := msg.Text()
	require.NoError(t, err)
	assert.Equal(t, body, got)

	// Compressing twice is a no-op.
	before := msg.Content
	require.NoError(t, msg.Compress())
	assert.Equal(t, before, msg.Content)
}

func TestCompressedMessageOnTheWire(t *testing.T) {
	wf, err := openwire.New(openwire.DefaultOptions())
	require.NoError(t, err)

	msg := &openwire.BytesMessage{}
	msg.SetBytes([]byte(strings.Repeat("ab", 1000)))
	require.NoError(t, msg.Compress())

	b, err := wf.MarshalBytes(msg)
	require.NoError(t, err)
	got, err := wf.UnmarshalBytes(b)
	require.NoError(t, err)

	body, err := got.(*openwire.BytesMessage).Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte(strings.Repeat("ab", 1000)), body)
}

func TestCorruptCompressedBody(t *testing.T) {
	msg := &openwire.TextMessage{}
	msg.Content = []byte{1, 2, 3}
	msg.Compressed = true
	_, err := msg.Text()
	assert.ErrorIs(t, err, openwire.ErrInvalidMessageBody)
}

func TestEmptyTextMessage(t *testing.T) {
	text, err := (&openwire.TextMessage{}).Text()
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestMapMessage(t *testing.T) {
	msg := &openwire.MapMessage{}
	require.NoError(t, msg.SetMap(map[string]any{"qty": int32(3), "sku": "A-1"}))

	got, err := msg.Map()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"qty": int32(3), "sku": "A-1"}, got)
}

func TestMessageProperties(t *testing.T) {
	msg := &openwire.Message{}
	v, err := msg.Property("missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, msg.SetProperty("JMSXGroupID", "g1"))
	require.NoError(t, msg.SetProperty("attempt", int32(2)))

	props, err := msg.Properties()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"JMSXGroupID": "g1", "attempt": int32(2)}, props)
}

func TestMessageExpiry(t *testing.T) {
	now := time.UnixMilli(1_000_000)
	cases := []struct {
		desc       string
		expiration int64
		expired    bool
	}{
		{"never", 0, false},
		{"future", 1_000_001, false},
		{"past", 999_999, true},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			msg := &openwire.Message{Expiration: tc.expiration}
			assert.Equal(t, tc.expired, msg.Expired(now))
		})
	}
}

func TestParseDestination(t *testing.T) {
	cases := []struct {
		input string
		tag   byte
		name  string
		topic bool
		temp  bool
	}{
		{"queue://orders", openwire.QueueType, "orders", false, false},
		{"topic://prices", openwire.TopicType, "prices", true, false},
		{"temp-queue://tq", openwire.TempQueueType, "tq", false, true},
		{"temp-topic://tt", openwire.TempTopicType, "tt", true, true},
		{"bare", openwire.QueueType, "bare", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			d, err := openwire.ParseDestination(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.tag, d.DataStructureType())
			assert.Equal(t, tc.name, d.Name())
			assert.Equal(t, tc.topic, d.IsTopic())
			assert.Equal(t, tc.temp, d.IsTemporary())
		})
	}

	_, err := openwire.ParseDestination("topic://")
	assert.ErrorIs(t, err, openwire.ErrInvalidDestination)
}

func TestBrokerError(t *testing.T) {
	cause := &openwire.BrokerError{ExceptionClass: "java.io.IOException", Message: "disk full"}
	e := &openwire.BrokerError{ExceptionClass: "javax.jms.JMSException", Message: "send failed", Cause: cause}

	assert.Equal(t, "javax.jms.JMSException: send failed", e.Error())
	var target *openwire.BrokerError
	require.True(t, errors.As(errors.Unwrap(e), &target))
	assert.Equal(t, cause, target)
	assert.Nil(t, cause.Unwrap())

	assert.Same(t, e, openwire.NewBrokerError(e))
	assert.Equal(t, "boom", openwire.NewBrokerError(errors.New("boom")).Message)
	assert.Nil(t, openwire.NewBrokerError(nil))
}
