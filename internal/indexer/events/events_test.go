package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
)

type recordingPublisher struct {
	events []kafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		if err := r.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func TestPublishIndexComplete(t *testing.T) {
	pub := &recordingPublisher{}
	err := PublishIndexComplete(context.Background(), pub, IndexCompleteEvent{
		Version:  "v1",
		DocCount: 11,
		Location: LocationStore,
	})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)

	assert.Equal(t, "v1", pub.events[0].Key)
	sent := pub.events[0].Value.(IndexCompleteEvent)
	assert.False(t, sent.BuiltAt.IsZero(), "BuiltAt is stamped")

	raw, err := json.Marshal(sent)
	require.NoError(t, err)
	decoded, err := DecodeIndexComplete(raw)
	require.NoError(t, err)
	assert.Equal(t, 11, decoded.DocCount)
	assert.WithinDuration(t, sent.BuiltAt, decoded.BuiltAt, time.Millisecond)
}

func TestPublishRejectsIncompleteEvent(t *testing.T) {
	pub := &recordingPublisher{}
	err := PublishIndexComplete(context.Background(), pub, IndexCompleteEvent{Version: "v1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Empty(t, pub.events)
}

func TestPublishWrapsTransportError(t *testing.T) {
	boom := errors.New("broker down")
	err := PublishIndexComplete(context.Background(), &recordingPublisher{err: boom},
		IndexCompleteEvent{Version: "v2", Location: "/srv/searchindex.js"})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "v2")
}

func TestDecodeIndexComplete(t *testing.T) {
	_, err := DecodeIndexComplete([]byte(`{"version":""}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = DecodeIndexComplete([]byte(`not json`))
	assert.Error(t, err)

	e, err := DecodeIndexComplete([]byte(`{"version":"v3","location":"postgres","doc_count":4}`))
	require.NoError(t, err)
	assert.Equal(t, "v3", e.Version)
	assert.Equal(t, 4, e.DocCount)
}
