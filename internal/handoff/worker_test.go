package handoff

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Botflow/internal/conversation"
	"github.com/shaiso/Botflow/internal/mq"
	"github.com/shaiso/Botflow/internal/repo"
)

type fakeService struct {
	mu       sync.Mutex
	pending  []uuid.UUID
	failures map[uuid.UUID]error
	handled  []uuid.UUID
	listErr  error
}

func (f *fakeService) Handoff(_ context.Context, id uuid.UUID) (*conversation.HandoffResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[id]; err != nil {
		return nil, err
	}
	f.handled = append(f.handled, id)
	return &conversation.HandoffResult{SessionID: id, Summary: "ok"}, nil
}

func (f *fakeService) ListPendingHandoffs(_ context.Context, limit int) ([]uuid.UUID, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func newTestWorker(svc Service, batch int) *Worker {
	return New(Config{
		Service:     svc,
		BatchSize:   batch,
		Concurrency: 2,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestNew_Defaults(t *testing.T) {
	w := New(Config{})

	if w.pollInterval != defaultPollInterval {
		t.Errorf("expected poll interval %v, got %v", defaultPollInterval, w.pollInterval)
	}
	if w.batchSize != defaultBatchSize || w.concurrency != defaultConcurrency {
		t.Errorf("unexpected defaults: batch=%d concurrency=%d", w.batchSize, w.concurrency)
	}
	if w.logger == nil {
		t.Error("logger should default to slog.Default()")
	}
}

func TestPoll(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	svc := &fakeService{
		pending:  ids,
		failures: map[uuid.UUID]error{ids[1]: errors.New("db down")},
	}
	w := newTestWorker(svc, 3)

	done := w.Poll(context.Background())

	if done != 2 {
		t.Errorf("expected 2 processed, got %d", done)
	}
	if len(svc.handled) != 2 {
		t.Errorf("expected 2 handoffs, got %v", svc.handled)
	}
	for _, id := range svc.handled {
		if id == ids[3] {
			t.Error("batch size should limit the poll")
		}
	}
}

func TestPoll_ListError(t *testing.T) {
	svc := &fakeService{listErr: errors.New("db down")}
	w := newTestWorker(svc, 10)

	if done := w.Poll(context.Background()); done != 0 {
		t.Errorf("expected 0, got %d", done)
	}
}

func delivery(t *testing.T, payload any) *mq.Delivery {
	t.Helper()
	return &mq.Delivery{Message: *mq.NewMessage(mq.MessageTypeHandoffReady, payload)}
}

func TestHandleHandoffReady(t *testing.T) {
	okID := uuid.New()
	goneID := uuid.New()
	flakyID := uuid.New()
	svc := &fakeService{failures: map[uuid.UUID]error{
		goneID:  repo.ErrNotFound,
		flakyID: errors.New("timeout"),
	}}
	w := newTestWorker(svc, 10)

	tests := []struct {
		name          string
		payload       any
		wantErr       bool
		wantPermanent bool
	}{
		{name: "handled", payload: mq.HandoffReadyPayload{SessionID: okID}},
		{name: "session gone is acked", payload: mq.HandoffReadyPayload{SessionID: goneID}},
		{name: "transient error requeues", payload: mq.HandoffReadyPayload{SessionID: flakyID}, wantErr: true},
		{name: "empty id dead-letters", payload: mq.HandoffReadyPayload{}, wantErr: true, wantPermanent: true},
		{name: "bad payload dead-letters", payload: map[string]any{"session_id": 42}, wantErr: true, wantPermanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.handleHandoffReady(context.Background(), delivery(t, tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if mq.IsPermanent(err) != tt.wantPermanent {
				t.Errorf("IsPermanent = %v, want %v", mq.IsPermanent(err), tt.wantPermanent)
			}
		})
	}

	if len(svc.handled) != 1 || svc.handled[0] != okID {
		t.Errorf("expected only %s handled, got %v", okID, svc.handled)
	}
}

func TestStartStop_PollOnly(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{pending: []uuid.UUID{id}}
	w := newTestWorker(svc, 10)

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.handled) == 0 || svc.handled[0] != id {
		t.Errorf("expected the initial poll to handle %s, got %v", id, svc.handled)
	}
}
