// Package queue publishes coalesced jobs to NATS JetStream.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/ports"
)

// NotBeforeHeader carries the earliest processing time of a job in RFC 3339.
const NotBeforeHeader = "Not-Before"

// StageHeader names the job stage.
const StageHeader = "Job-Stage"

// KeyHeader carries the coalescing key.
const KeyHeader = "Job-Key"

// TriggersHeader counts how many upserts the key has seen.
const TriggersHeader = "Job-Triggers"

// Config describes the stream jobs are published to.
type Config struct {
	URL     string
	Stream  string
	Subject string
	// DedupWindow drops byte-identical republishes of a job.
	DedupWindow time.Duration
}

type publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type lastMsgGetter interface {
	GetLastMsgForSubject(ctx context.Context, subject string) (*jetstream.RawStreamMsg, error)
}

// JetStream implements ports.JobQueue and ports.JobReader. Every key has its
// own subject and each publish rolls that subject up, so the stream holds
// the latest payload of a key.
type JetStream struct {
	conn    *nats.Conn
	js      publisher
	stream  lastMsgGetter
	subject string
	logger  *slog.Logger
}

var (
	_ ports.JobQueue  = (*JetStream)(nil)
	_ ports.JobReader = (*JetStream)(nil)
)

// Connect dials NATS and ensures the stream exists.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*JetStream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("evidenceledger"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Subjects:    []string{cfg.Subject + ".>"},
		Duplicates:  cfg.DedupWindow,
		AllowRollup: true,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}

	q := newJetStream(js, stream, cfg.Subject, logger)
	q.conn = nc
	return q, nil
}

func newJetStream(js publisher, stream lastMsgGetter, subject string, logger *slog.Logger) *JetStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &JetStream{js: js, stream: stream, subject: subject, logger: logger}
}

// UpsertJob publishes the job payload on the subject of job.Key, replacing
// the previous payload of that key.
func (q *JetStream) UpsertJob(ctx context.Context, job domain.Job) error {
	if !json.Valid(job.Payload) {
		return fmt.Errorf("job %s: payload is not valid JSON", job.Key)
	}

	triggers := 1
	prev, err := q.Job(ctx, job.Stage, job.Key)
	switch {
	case err == nil:
		triggers = prev.Triggers + 1
	case !errors.Is(err, ports.ErrNotFound):
		return err
	}

	msg := nats.NewMsg(q.subjectFor(job.Stage, job.Key))
	msg.Data = job.Payload
	msg.Header.Set(nats.MsgIdHdr, messageID(job))
	msg.Header.Set(jetstream.MsgRollup, jetstream.MsgRollupSubject)
	msg.Header.Set(StageHeader, job.Stage)
	msg.Header.Set(KeyHeader, job.Key)
	msg.Header.Set(TriggersHeader, strconv.Itoa(triggers))
	msg.Header.Set(NotBeforeHeader, job.NotBefore.UTC().Format(time.RFC3339))

	ack, err := q.js.PublishMsg(ctx, msg)
	if err != nil {
		return fmt.Errorf("publish job %s: %w", job.Key, err)
	}
	if ack != nil && ack.Duplicate {
		q.logger.Debug("identical job dropped by stream", "key", job.Key, "stream", ack.Stream)
	}
	return nil
}

// Job returns the latest published payload of a key.
func (q *JetStream) Job(ctx context.Context, stage, key string) (domain.Job, error) {
	if q.stream == nil {
		return domain.Job{}, ports.ErrNotFound
	}
	msg, err := q.stream.GetLastMsgForSubject(ctx, q.subjectFor(stage, key))
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return domain.Job{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job %s: %w", key, err)
	}

	job := domain.Job{Stage: stage, Key: key, Payload: msg.Data}
	if n, err := strconv.Atoi(msg.Header.Get(TriggersHeader)); err == nil {
		job.Triggers = n
	}
	if t, err := time.Parse(time.RFC3339, msg.Header.Get(NotBeforeHeader)); err == nil {
		job.NotBefore = t
	}
	return job, nil
}

func (q *JetStream) subjectFor(stage, key string) string {
	return q.subject + "." + stage + "." + subjectToken(key)
}

// subjectToken maps a key onto a single subject token.
func subjectToken(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, key)
}

// messageID is stable for identical payloads of a key.
func messageID(job domain.Job) string {
	h := fnv.New64a()
	_, _ = h.Write(job.Payload)
	return job.Key + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// Close drains the connection.
func (q *JetStream) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Drain()
}
