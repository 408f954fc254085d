package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/ports"
)

// memoryStream keeps the last message per subject, like a rollup stream.
type memoryStream struct {
	msgs []*nats.Msg
	last map[string]*nats.Msg
	seen map[string]bool
	err  error
}

func (s *memoryStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.seen == nil {
		s.seen = map[string]bool{}
		s.last = map[string]*nats.Msg{}
	}
	id := msg.Header.Get(nats.MsgIdHdr)
	if s.seen[id] {
		return &jetstream.PubAck{Stream: "EVIDENCE_JOBS", Duplicate: true}, nil
	}
	s.seen[id] = true
	s.msgs = append(s.msgs, msg)
	if msg.Header.Get(jetstream.MsgRollup) == jetstream.MsgRollupSubject {
		s.last[msg.Subject] = msg
	}
	return &jetstream.PubAck{Stream: "EVIDENCE_JOBS"}, nil
}

func (s *memoryStream) GetLastMsgForSubject(_ context.Context, subject string) (*jetstream.RawStreamMsg, error) {
	msg, ok := s.last[subject]
	if !ok {
		return nil, jetstream.ErrMsgNotFound
	}
	return &jetstream.RawStreamMsg{Subject: msg.Subject, Header: msg.Header, Data: msg.Data}, nil
}

func TestUpsertJobSetsHeaders(t *testing.T) {
	stream := &memoryStream{}
	q := newJetStream(stream, stream, "evidence.jobs", nil)

	notBefore := time.Date(2026, 5, 1, 10, 5, 0, 0, time.UTC)
	job := domain.Job{Stage: "notify", Key: "acme:1777629600", Payload: []byte(`{"organizationId":"acme"}`), NotBefore: notBefore}

	require.NoError(t, q.UpsertJob(context.Background(), job))

	require.Len(t, stream.msgs, 1)
	msg := stream.msgs[0]
	assert.Equal(t, "evidence.jobs.notify.acme:1777629600", msg.Subject)
	assert.Equal(t, jetstream.MsgRollupSubject, msg.Header.Get(jetstream.MsgRollup))
	assert.Equal(t, "acme:1777629600", msg.Header.Get(KeyHeader))
	assert.Equal(t, "1", msg.Header.Get(TriggersHeader))
	assert.Equal(t, "2026-05-01T10:05:00Z", msg.Header.Get(NotBeforeHeader))
	assert.Equal(t, "notify", msg.Header.Get(StageHeader))
	assert.JSONEq(t, `{"organizationId":"acme"}`, string(msg.Data))
}

func TestUpsertJobReplacesPayloadOfKey(t *testing.T) {
	ctx := context.Background()
	stream := &memoryStream{}
	q := newJetStream(stream, stream, "evidence.jobs", nil)

	_, err := q.Job(ctx, "notify", "acme:1")
	require.ErrorIs(t, err, ports.ErrNotFound)

	first := domain.Job{Stage: "notify", Key: "acme:1", Payload: []byte(`{"deltas":{"labor":-3}}`)}
	second := domain.Job{Stage: "notify", Key: "acme:1", Payload: []byte(`{"deltas":{"labor":-6}}`)}
	require.NoError(t, q.UpsertJob(ctx, first))
	require.NoError(t, q.UpsertJob(ctx, second))
	// An identical republish is dropped by the duplicate window.
	require.NoError(t, q.UpsertJob(ctx, second))

	assert.Len(t, stream.msgs, 2)
	got, err := q.Job(ctx, "notify", "acme:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"deltas":{"labor":-6}}`, string(got.Payload))
	assert.Equal(t, 2, got.Triggers)
}

func TestSubjectTokenEscapesWildcards(t *testing.T) {
	assert.Equal(t, "acme_inc:1", subjectToken("acme.inc:1"))
	assert.Equal(t, "a_b_c_d", subjectToken("a*b>c d"))
}

func TestUpsertJobErrors(t *testing.T) {
	stream := &memoryStream{}
	q := newJetStream(stream, stream, "evidence.jobs", nil)
	err := q.UpsertJob(context.Background(), domain.Job{Stage: "notify", Key: "k", Payload: []byte("{")})
	require.Error(t, err)

	down := &memoryStream{err: errors.New("no responders")}
	q = newJetStream(down, down, "evidence.jobs", nil)
	err = q.UpsertJob(context.Background(), domain.Job{Stage: "notify", Key: "k", Payload: []byte("{}")})
	require.ErrorContains(t, err, "no responders")
}
