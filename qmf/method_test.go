package qmf

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.bryk.io/rmi/broker"
	"go.bryk.io/rmi/document"
)

type fakeMessage struct {
	body []byte
}

func (m *fakeMessage) Body() []byte  { return m.body }
func (m *fakeMessage) Ack() error    { return nil }
func (m *fakeMessage) Reject() error { return nil }

type fakeSender struct {
	sent [][]byte
	err  error
}

func (s *fakeSender) Send(_ context.Context, body []byte, _ time.Duration, _ bool) error {
	s.sent = append(s.sent, body)
	return s.err
}
func (s *fakeSender) Close() error { return nil }

type fakeReader struct {
	reply methodReply
}

func (r *fakeReader) Next(context.Context, time.Duration) (broker.Message, *document.Envelope, error) {
	body, _ := json.Marshal(r.reply)
	return &fakeMessage{body: body}, nil, nil
}
func (r *fakeReader) Close() error { return nil }

type fakeSession struct {
	sender *fakeSender
	reader *fakeReader
}

func (s *fakeSession) Sender(context.Context, string) (broker.Sender, error) { return s.sender, nil }
func (s *fakeSession) Reader(context.Context, string) (broker.Reader, error) { return s.reader, nil }
func (s *fakeSession) Exchange(string) broker.Exchange                      { return nil }
func (s *fakeSession) Queue(string) broker.Queue                            { return nil }
func (s *fakeSession) Acknowledge() error                                   { return nil }
func (s *fakeSession) Close() error                                         { return nil }

func TestInvokeSucceedsOnNonExceptionReply(t *testing.T) {
	sender := &fakeSender{}
	reader := &fakeReader{reply: methodReply{Opcode: "_method_response"}}
	session := &fakeSession{sender: sender, reader: reader}

	err := Invoke(context.Background(), session, Method{Name: opCreate, Arguments: map[string]any{"name": "q1"}})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	var req methodRequest
	require.NoError(t, json.Unmarshal(sender.sent[0], &req))
	require.Equal(t, opCreate, req.MethodName)
}

func TestInvokeSwallowsAlreadyExists(t *testing.T) {
	reply := methodReply{Opcode: "_exception"}
	reply.Values.ErrorCode = alreadyExists
	reply.Values.ErrorText = "object already exists"
	session := &fakeSession{sender: &fakeSender{}, reader: &fakeReader{reply: reply}}

	err := DeclareQueue(context.Background(), session, "q1", true, false, false)
	require.NoError(t, err)
}

func TestInvokeSurfacesOtherExceptions(t *testing.T) {
	reply := methodReply{Opcode: "_exception"}
	reply.Values.ErrorCode = 1
	reply.Values.ErrorText = "not allowed"
	session := &fakeSession{sender: &fakeSender{}, reader: &fakeReader{reply: reply}}

	err := DeclareExchange(context.Background(), session, "e1", "topic", true, false)
	require.Error(t, err)
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	require.Equal(t, 1, qerr.Code)
}

func TestBindingNameMatchesOriginalConvention(t *testing.T) {
	require.Equal(t, "e1/q1/q1", bindingName("e1", "q1"))
}
