package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crm-approval-gateway/internal/domain"
	"go.uber.org/zap"
)

type captureSink struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newCaptureSink() *captureSink {
	return &captureSink{messages: make(map[string][][]byte)}
}

func (s *captureSink) Publish(_ context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[channel] = append(s.messages[channel], payload)
	return nil
}

func (s *captureSink) get(channel string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[channel]
}

func TestNotifyApproversFansOut(t *testing.T) {
	sink := newCaptureSink()
	d := NewDispatcher(sink, 16, zap.NewNop())
	d.Start()

	req := domain.NewPendingRequest("dave", domain.OpCreate, domain.EntityPerson, nil,
		map[string]domain.FieldValue{"name": domain.StringValue("Ada Lovelace")},
		[]string{"alice", "bob"})

	d.NotifyApprovers(req)
	d.Stop() // Stop дожимает буфер до конца

	for _, approver := range []string{"alice", "bob"} {
		msgs := sink.get("crmgate:notify:approver:" + approver)
		require.Len(t, msgs, 1, "approver %s", approver)

		var hint map[string]interface{}
		require.NoError(t, json.Unmarshal(msgs[0], &hint))
		assert.Equal(t, req.ID, hint["request_id"])
		assert.Equal(t, "create", hint["operation"])
		assert.Equal(t, "dave", hint["requester_id"])

		// Поля уходят в человекочитаемой форме
		fields := hint["fields"].(map[string]interface{})
		assert.Equal(t, "Ada Lovelace", fields["name"])
	}
}

func TestNotifyOutcomeTargetsRequester(t *testing.T) {
	sink := newCaptureSink()
	d := NewDispatcher(sink, 16, zap.NewNop())
	d.Start()

	req := domain.NewPendingRequest("dave", domain.OpDelete, domain.EntityTask, nil, nil, []string{"alice"})
	d.NotifyOutcome(req, domain.Outcome{Status: domain.StatusExecuted, RecordID: 42})
	d.Stop()

	msgs := sink.get("crmgate:notify:outcome:dave")
	require.Len(t, msgs, 1)

	var note map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0], &note))
	assert.Equal(t, "EXECUTED", note["status"])
	assert.Equal(t, float64(42), note["record_id"])
}

func TestEnqueueAfterStopDropsSilently(t *testing.T) {
	sink := newCaptureSink()
	d := NewDispatcher(sink, 16, zap.NewNop())
	d.Start()
	d.Stop()

	req := domain.NewPendingRequest("dave", domain.OpCreate, domain.EntityLead, nil, nil, []string{"alice"})

	// Не должно паниковать на закрытом канале
	d.NotifyApprovers(req)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.get("crmgate:notify:approver:alice"))
}

func TestStopRacingEnqueueDoesNotPanic(t *testing.T) {
	sink := newCaptureSink()
	d := NewDispatcher(sink, 4, zap.NewNop())
	d.Start()

	req := domain.NewPendingRequest("dave", domain.OpCreate, domain.EntityPerson, nil, nil, []string{"alice"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				d.NotifyOutcome(req, domain.Outcome{Status: domain.StatusExecuted})
			}
		}()
	}

	// Остановка посреди шквала отправок: паника на закрытом канале
	// провалила бы тест
	d.Stop()
	wg.Wait()
}

func TestOverflowSheddingDoesNotBlock(t *testing.T) {
	sink := newCaptureSink()
	// Буфер на 1 сообщение, воркер не запущен: второе сообщение сбрасывается
	d := NewDispatcher(sink, 1, zap.NewNop())

	req := domain.NewPendingRequest("dave", domain.OpCreate, domain.EntityPerson, nil, nil, []string{"alice"})

	done := make(chan struct{})
	go func() {
		d.NotifyApprovers(req)
		d.NotifyApprovers(req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher blocked on full buffer")
	}
	assert.Equal(t, 1, d.Len())
}
