package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localcredits/backend/internal/models"
	"github.com/localcredits/backend/internal/repository"
)

type pgxTx struct {
	repository.Tx
}

func (pgxTx) PgxTx() pgx.Tx { return nil }

func sampleEvent() models.TransitionEvent {
	return models.TransitionEvent{
		TransactionID: uuid.New(),
		Event:         models.EventAccept,
		From:          models.StatusPending,
		To:            models.StatusAccepted,
		ActorID:       uuid.New(),
		OccurredAt:    time.Now().UTC(),
	}
}

func TestRiverPublisher(t *testing.T) {
	var got []TransitionArgs
	p := NewRiverPublisher(func(_ context.Context, _ pgx.Tx, args TransitionArgs) error {
		got = append(got, args)
		return nil
	})
	ev := sampleEvent()

	require.NoError(t, p.Publish(context.Background(), pgxTx{}, ev))
	require.Len(t, got, 1)
	assert.Equal(t, ev, got[0].Event)

	err := p.Publish(context.Background(), struct{ repository.Tx }{}, ev)
	assert.ErrorIs(t, err, ErrNoDatabaseTx)
}

func TestRiverPublisher_InsertError(t *testing.T) {
	boom := errors.New("insert failed")
	p := NewRiverPublisher(func(context.Context, pgx.Tx, TransitionArgs) error { return boom })
	assert.ErrorIs(t, p.Publish(context.Background(), pgxTx{}, sampleEvent()), boom)
}

func job(ev models.TransitionEvent) *river.Job[TransitionArgs] {
	return &river.Job[TransitionArgs]{JobRow: &rivertype.JobRow{ID: 1}, Args: TransitionArgs{Event: ev}}
}

func TestTransitionWorker(t *testing.T) {
	var seen []models.Event
	ok := HandlerFunc(func(_ context.Context, ev models.TransitionEvent) error {
		seen = append(seen, ev.Event)
		return nil
	})
	boom := errors.New("downstream")
	failing := HandlerFunc(func(context.Context, models.TransitionEvent) error { return boom })

	w := NewTransitionWorker(nil, ok, LogHandler(nil))
	require.NoError(t, w.Work(context.Background(), job(sampleEvent())))
	assert.Equal(t, []models.Event{models.EventAccept}, seen)

	w = NewTransitionWorker(nil, failing, ok)
	err := w.Work(context.Background(), job(sampleEvent()))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, seen, 2, "later handlers still run")
}

func TestWebhook(t *testing.T) {
	var received models.TransitionEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ev := sampleEvent()
	require.NoError(t, NewWebhook(srv.URL).Handle(context.Background(), ev))
	assert.Equal(t, ev.TransactionID, received.TransactionID)
	assert.Equal(t, ev.To, received.To)
}

func TestWebhook_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(srv.URL).Handle(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "502")
}
