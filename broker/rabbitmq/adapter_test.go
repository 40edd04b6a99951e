package rabbitmq

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bryk.io/rmi/broker"
)

// requireLiveBroker skips the test unless a RabbitMQ management API is
// reachable on localhost, matching the teacher's own integration-test
// gating in amqp/session_test.go.
func requireLiveBroker(t *testing.T) {
	t.Helper()
	res, err := http.Get("http://localhost:15672/api/auth")
	if err != nil || res.StatusCode != http.StatusOK {
		t.Skip("no AMQP server available for testing")
	}
	_ = res.Body.Close()
}

func TestAdapterOpenSessionRoundtrip(t *testing.T) {
	requireLiveBroker(t)

	u, err := broker.ParseURL("amqp://localhost:5672")
	require.NoError(t, err)

	topology := broker.Topology{
		Queues: []broker.QueueSpec{{Name: "rmi-adapter-test", AutoDelete: true}},
	}

	a := NewAdapter(nil, nil, nil)
	conn, err := a.Dial(u, topology)
	require.NoError(t, err)
	require.NoError(t, conn.Open(context.Background()))
	defer conn.Close()

	session, err := conn.Session(context.Background())
	require.NoError(t, err)
	defer session.Close()

	sender, err := session.Sender(context.Background(), "/rmi-adapter-test")
	require.NoError(t, err)
	require.NoError(t, sender.Send(context.Background(), []byte(`{"sn":"t1","version":"1.0"}`), time.Minute, false))

	reader, err := session.Reader(context.Background(), "rmi-adapter-test")
	require.NoError(t, err)
	defer reader.Close()

	msg, env, err := reader.Next(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "t1", env.SN)
	require.NoError(t, msg.Ack())
}
