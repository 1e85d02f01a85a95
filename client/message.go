// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "github.com/absmach/openwire/openwire"

// Message is a message received by a consumer.
type Message struct {
	openwire.AnyMessage

	dispatch *openwire.MessageDispatch
	consumer *Consumer
}

// MessageListener handles messages delivered asynchronously. A returned
// error is reported to the connection's exception callback.
type MessageListener func(msg *Message) error

func newMessage(md *openwire.MessageDispatch, c *Consumer) *Message {
	return &Message{AnyMessage: md.Message, dispatch: md, consumer: c}
}

// Acknowledge confirms consumption of the message. It only sends an ack in
// client acknowledgement mode; in every other mode it does nothing.
func (m *Message) Acknowledge() error {
	if m.consumer == nil || m.consumer.session.ackMode != ClientAcknowledge {
		return nil
	}
	return m.consumer.acknowledge(m.dispatch)
}

// RedeliveryCount returns how many times the message was redelivered.
func (m *Message) RedeliveryCount() int32 {
	return m.dispatch.RedeliveryCounter
}

// Destination returns the destination the message was dispatched from.
func (m *Message) Destination() openwire.Destination {
	if m.dispatch.Destination != nil {
		return m.dispatch.Destination
	}
	return m.Base().Destination
}

// Text returns the body of a text message.
func (m *Message) Text() (string, error) {
	tm, ok := m.AnyMessage.(*openwire.TextMessage)
	if !ok {
		return "", ErrNotTextMessage
	}
	return tm.Text()
}
