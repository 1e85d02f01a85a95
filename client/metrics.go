// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OpenTelemetry metric instruments for the client.
type Metrics struct {
	meter metric.Meter

	messagesDispatched metric.Int64Counter
	messagesDropped    metric.Int64Counter
	messagesSent       metric.Int64Counter
	messagesExpired    metric.Int64Counter
	acksSent           metric.Int64Counter
	redeliveries       metric.Int64Counter
	poisonAcks         metric.Int64Counter
	listenerErrors     metric.Int64Counter

	sessionsCurrent  metric.Int64UpDownCounter
	consumersCurrent metric.Int64UpDownCounter

	receiveWait metric.Float64Histogram
}

// NewMetrics creates client metrics on meter. A nil meter uses the global
// provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter("openwire-client")
	}
	m := &Metrics{meter: meter}

	var err error

	m.messagesDispatched, err = m.meter.Int64Counter(
		"openwire.messages.dispatched.total",
		metric.WithDescription("Messages dispatched to consumers by the broker"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesDispatched counter: %w", err)
	}

	m.messagesDropped, err = m.meter.Int64Counter(
		"openwire.messages.dropped.total",
		metric.WithDescription("Dispatches for unknown consumers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesDropped counter: %w", err)
	}

	m.messagesSent, err = m.meter.Int64Counter(
		"openwire.messages.sent.total",
		metric.WithDescription("Messages sent by producers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesSent counter: %w", err)
	}

	m.messagesExpired, err = m.meter.Int64Counter(
		"openwire.messages.expired.total",
		metric.WithDescription("Expired messages skipped by consumers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messagesExpired counter: %w", err)
	}

	m.acksSent, err = m.meter.Int64Counter(
		"openwire.acks.sent.total",
		metric.WithDescription("Message acknowledgements sent by type"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create acksSent counter: %w", err)
	}

	m.redeliveries, err = m.meter.Int64Counter(
		"openwire.messages.redelivered.total",
		metric.WithDescription("Messages requeued after a rollback"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redeliveries counter: %w", err)
	}

	m.poisonAcks, err = m.meter.Int64Counter(
		"openwire.messages.poisoned.total",
		metric.WithDescription("Messages discarded after exceeding the redelivery limit"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create poisonAcks counter: %w", err)
	}

	m.listenerErrors, err = m.meter.Int64Counter(
		"openwire.listener.errors.total",
		metric.WithDescription("Message listener errors and panics"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create listenerErrors counter: %w", err)
	}

	m.sessionsCurrent, err = m.meter.Int64UpDownCounter(
		"openwire.sessions.current",
		metric.WithDescription("Open sessions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessionsCurrent gauge: %w", err)
	}

	m.consumersCurrent, err = m.meter.Int64UpDownCounter(
		"openwire.consumers.current",
		metric.WithDescription("Open consumers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumersCurrent gauge: %w", err)
	}

	m.receiveWait, err = m.meter.Float64Histogram(
		"openwire.receive.wait.seconds",
		metric.WithDescription("Time synchronous receives spent waiting for a message"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create receiveWait histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordDispatched() {
	m.messagesDispatched.Add(context.Background(), 1)
}

func (m *Metrics) RecordDropped() {
	m.messagesDropped.Add(context.Background(), 1)
}

func (m *Metrics) RecordSent() {
	m.messagesSent.Add(context.Background(), 1)
}

func (m *Metrics) RecordExpired() {
	m.messagesExpired.Add(context.Background(), 1)
}

func (m *Metrics) RecordAck(ackType byte) {
	m.acksSent.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("type", ackTypeName(ackType)),
	))
}

func (m *Metrics) RecordRedelivery() {
	m.redeliveries.Add(context.Background(), 1)
}

func (m *Metrics) RecordPoisonAck() {
	m.poisonAcks.Add(context.Background(), 1)
}

func (m *Metrics) RecordListenerError() {
	m.listenerErrors.Add(context.Background(), 1)
}

func (m *Metrics) RecordSessionOpened() {
	m.sessionsCurrent.Add(context.Background(), 1)
}

func (m *Metrics) RecordSessionClosed() {
	m.sessionsCurrent.Add(context.Background(), -1)
}

func (m *Metrics) RecordConsumerOpened() {
	m.consumersCurrent.Add(context.Background(), 1)
}

func (m *Metrics) RecordConsumerClosed() {
	m.consumersCurrent.Add(context.Background(), -1)
}

func (m *Metrics) RecordReceiveWait(d time.Duration) {
	m.receiveWait.Record(context.Background(), d.Seconds())
}
