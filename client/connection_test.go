// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/absmach/openwire/openwire"
	"github.com/absmach/openwire/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRegistersConnection(t *testing.T) {
	c, ft := newTestConnection(t, func(o *Options) { o.SetClientID("svc").SetCredentials("u", "p") })

	assert.Equal(t, StateConnected, c.State())
	infos := requests[*openwire.ConnectionInfo](ft)
	require.Len(t, infos, 1)
	assert.Equal(t, "svc", infos[0].ClientID)
	assert.Equal(t, "u", infos[0].UserName)
	assert.Equal(t, "p", infos[0].Password)
	assert.True(t, strings.HasPrefix(c.ID().Value, "ID:"))
	assert.Same(t, c.ID(), infos[0].ConnectionID)

	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
}

func TestConnectGeneratesClientID(t *testing.T) {
	c, _ := newTestConnection(t, nil)
	assert.Equal(t, c.ID().Value, c.ClientID())
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*fakeTransport)
		check   func(t *testing.T, err error)
	}{
		{
			name:    "negotiation rejected",
			prepare: func(ft *fakeTransport) { ft.startErr = openwire.ErrVersionTooLow },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, openwire.ErrVersionTooLow)
			},
		},
		{
			name: "broker refuses connection",
			prepare: func(ft *fakeTransport) {
				ft.respond = func(context.Context, openwire.Command) (openwire.Responder, error) {
					return nil, &openwire.BrokerError{ExceptionClass: "java.lang.SecurityException", Message: "denied"}
				}
			},
			check: func(t *testing.T, err error) {
				var be *openwire.BrokerError
				require.ErrorAs(t, err, &be)
				assert.Equal(t, "denied", be.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{}
			tt.prepare(ft)
			c, err := NewConnection(ft, testOptions())
			require.NoError(t, err)

			tt.check(t, c.Connect(context.Background()))
			assert.Equal(t, StateClosed, c.State())
			assert.Equal(t, 1, ft.closeCount())
			assert.ErrorIs(t, c.Connect(context.Background()), ErrConnectionClosed)

			_, err = c.CreateSession(context.Background(), AutoAcknowledge)
			assert.ErrorIs(t, err, ErrConnectionClosed)
		})
	}
}

func TestNewConnectionValidates(t *testing.T) {
	_, err := NewConnection(nil, testOptions())
	assert.ErrorIs(t, err, ErrNilTransport)

	_, err = NewConnection(&fakeTransport{}, testOptions().SetRequestTimeout(0))
	assert.ErrorIs(t, err, ErrInvalidRequestTimeout)
}

func TestCreateSessionBeforeConnect(t *testing.T) {
	c, err := NewConnection(&fakeTransport{}, testOptions())
	require.NoError(t, err)

	_, err = c.CreateSession(context.Background(), AutoAcknowledge)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, c.Start(), ErrNotConnected)
}

func TestCreateSessionRejectsBadAckMode(t *testing.T) {
	c, _ := newTestConnection(t, nil)
	_, err := c.CreateSession(context.Background(), AckMode(42))
	assert.ErrorIs(t, err, ErrInvalidAckMode)
}

func TestOnCommandRoutesDispatch(t *testing.T) {
	s, ft := newTestSession(t, AutoAcknowledge, nil)
	cons := newTestConsumer(t, s)

	ft.deliver(dispatchFor(cons, 1, "hello"))
	msg, err := cons.ReceiveNoWait()
	require.NoError(t, err)
	assert.Equal(t, "hello", mustText(t, msg))

	// Dispatches for unknown consumers are dropped.
	stranger := &openwire.ConsumerID{ConnectionID: "other", SessionID: 9, Value: 9}
	ft.deliver(&openwire.MessageDispatch{ConsumerID: stranger})
	ft.deliver(&openwire.MessageDispatch{})
	_, err = cons.ReceiveNoWait()
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestOnCommandReportsBrokerFailuresOnce(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	c, ft := newTestConnection(t, func(o *Options) {
		o.SetOnException(func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		})
	})

	ft.deliver(&openwire.ShutdownInfo{})
	ft.deliver(&openwire.ConnectionError{Exception: &openwire.BrokerError{Message: "late"}})
	ft.fail(transport.ErrConnectionLost)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], ErrBrokerShutdown)
	assert.True(t, c.Failed())
}

func TestOnCommandConnectionError(t *testing.T) {
	reported := make(chan error, 1)
	_, ft := newTestConnection(t, func(o *Options) { o.SetOnException(func(err error) { reported <- err }) })

	ft.deliver(&openwire.ConnectionError{Exception: &openwire.BrokerError{ExceptionClass: "java.io.IOException", Message: "disk"}})

	err := <-reported
	assert.ErrorIs(t, err, ErrConnectionError)
	var be *openwire.BrokerError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "disk", be.Message)
}

func TestOnCommandKeepAliveAndBrokerInfo(t *testing.T) {
	c, ft := newTestConnection(t, nil)

	ft.deliver(&openwire.KeepAliveInfo{})
	assert.Empty(t, oneways[*openwire.KeepAliveInfo](ft))

	ft.deliver(&openwire.KeepAliveInfo{BaseCommand: openwire.BaseCommand{ResponseRequired: true}})
	assert.Len(t, oneways[*openwire.KeepAliveInfo](ft), 1)

	info := &openwire.BrokerInfo{BrokerName: "amq-1"}
	ft.deliver(info)
	assert.Same(t, info, c.BrokerInfo())

	// Handled elsewhere or ignored.
	ft.deliver(&openwire.WireFormatInfo{})
	ft.deliver(&openwire.Response{})
	assert.False(t, c.Failed())
}

func TestTransportFailureAfterCloseIsSilent(t *testing.T) {
	reported := make(chan error, 1)
	c, ft := newTestConnection(t, func(o *Options) { o.SetOnException(func(err error) { reported <- err }) })

	require.NoError(t, c.Close())
	ft.fail(transport.ErrConnectionLost)
	ft.deliver(&openwire.ShutdownInfo{})
	assert.Empty(t, reported)
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	c, ft := newTestConnection(t, nil)
	s, err := c.CreateSession(context.Background(), AutoAcknowledge)
	require.NoError(t, err)
	cons := newTestConsumer(t, s)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, 1, ft.closeCount())
	assert.Len(t, oneways[*openwire.ShutdownInfo](ft), 1)

	removed := requests[*openwire.RemoveInfo](ft)
	require.Len(t, removed, 3)
	assert.Equal(t, cons.ID(), removed[0].ObjectID)
	assert.Equal(t, s.ID(), removed[1].ObjectID)
	assert.Equal(t, c.ID(), removed[2].ObjectID)

	_, err = c.CreateSession(context.Background(), AutoAcknowledge)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = cons.ReceiveNoWait()
	assert.ErrorIs(t, err, ErrConsumerClosed)
	_, err = s.CreateConsumer(context.Background(), openwire.NewQueue("q"), "")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.True(t, IsClosedError(err))
}

func TestCloseAfterFailureSkipsUnregister(t *testing.T) {
	c, ft := newTestConnection(t, func(o *Options) { o.SetOnException(func(error) {}) })
	ft.fail(errors.New("reset by peer"))

	require.NoError(t, c.Close())
	assert.Empty(t, requests[*openwire.RemoveInfo](ft))
	assert.Empty(t, oneways[*openwire.ShutdownInfo](ft))
}

func TestTemporaryDestinations(t *testing.T) {
	c, ft := newTestConnection(t, nil)
	ctx := context.Background()

	q, err := c.CreateTemporaryQueue(ctx)
	require.NoError(t, err)
	topic, err := c.CreateTemporaryTopic(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, q.Name(), topic.Name())
	assert.True(t, strings.HasPrefix(q.Name(), c.ID().Value+":"))

	require.NoError(t, c.DeleteTemporaryDestination(ctx, q))
	assert.ErrorIs(t, c.DeleteTemporaryDestination(ctx, openwire.NewQueue("durable")), ErrTempDestination)

	infos := requests[*openwire.DestinationInfo](ft)
	require.Len(t, infos, 3)
	assert.Equal(t, openwire.DestinationAdd, infos[0].OperationType)
	assert.Equal(t, openwire.DestinationAdd, infos[1].OperationType)
	assert.Equal(t, openwire.DestinationRemove, infos[2].OperationType)
	assert.Same(t, q, infos[2].Destination)
}

func TestRequestTimeoutBoundsRequests(t *testing.T) {
	c, ft := newTestConnection(t, func(o *Options) { o.SetRequestTimeout(20 * time.Millisecond) })
	ft.setRespond(func(ctx context.Context, _ openwire.Command) (openwire.Responder, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	start := time.Now()
	_, err := c.CreateSession(context.Background(), AutoAcknowledge)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
