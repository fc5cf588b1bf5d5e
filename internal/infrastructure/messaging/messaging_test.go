package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/palms-core/internal/domain/notification"
	"github.com/alem-hub/palms-core/internal/domain/shared"
	"github.com/alem-hub/palms-core/internal/domain/tasking"
	"github.com/alem-hub/palms-core/pkg/logger"
	"github.com/alem-hub/palms-core/pkg/retry"
)

func completed(id string) shared.Event {
	return shared.NewProjectCompletedEvent(id, "Graph search", "u-s1", "u-prof")
}

func TestSyncBusDeliversToTypedAndGlobalHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop(), EnableMetrics: true})

	var typed, global []string
	require.NoError(t, bus.Subscribe(shared.EventProjectCompleted, func(e shared.Event) error {
		typed = append(typed, e.AggregateID())
		return errors.New("handler broke")
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		global = append(global, string(e.EventType()))
		return nil
	}))

	// A failing handler never fails the publisher.
	require.NoError(t, bus.Publish(completed("p1")))
	require.NoError(t, bus.Publish(shared.NewAttachmentsSharedEvent("p1", nil)))

	assert.Equal(t, []string{"p1"}, typed)
	assert.Equal(t, []string{string(shared.EventProjectCompleted), string(shared.EventAttachmentsShared)}, global)

	snap := bus.Metrics().Snapshot()
	assert.EqualValues(t, 2, snap.TotalPublished)
	assert.EqualValues(t, 3, snap.TotalHandlerExecs)
	assert.EqualValues(t, 1, snap.HandlerFailures)
}

func TestAsyncBusCloseWaitsForHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: logger.Nop()})

	var n atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventProjectCompleted, func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		n.Add(1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(completed("p")))
	}
	require.NoError(t, bus.Close())
	assert.EqualValues(t, 5, n.Load())

	assert.ErrorIs(t, bus.Publish(completed("p")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.Nil(t, bus.Metrics())
}

func TestBusRejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Nop()})
	assert.Error(t, bus.Subscribe(shared.EventProjectCompleted, nil))
	assert.Error(t, bus.Publish(nil))
}

func TestMiddlewareChain(t *testing.T) {
	dlq := NewDeadLetterQueue(10)
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		Logger: logger.Nop(),
		Middlewares: []Middleware{
			DeadLetterMiddleware(dlq),
			RecoveryMiddleware(logger.Nop()),
			RetryMiddleware(retry.New(retry.WithMaxAttempts(3), retry.WithInitialDelay(time.Millisecond))),
		},
	})

	attempts := 0
	require.NoError(t, bus.Subscribe(shared.EventProjectCompleted, func(shared.Event) error {
		attempts++
		if attempts < 3 {
			return errors.New("chat down")
		}
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventAttachmentsShared, func(shared.Event) error {
		panic("nil map")
	}))
	require.NoError(t, bus.Subscribe(shared.EventProjectSubmitted, func(shared.Event) error {
		return shared.Invalid("project", "Notify", "bad")
	}))

	require.NoError(t, bus.Publish(completed("p1")))
	assert.Equal(t, 3, attempts)
	assert.Zero(t, dlq.Size())

	require.NoError(t, bus.Publish(shared.NewAttachmentsSharedEvent("p1", nil)))
	require.Equal(t, 1, dlq.Size())
	entry, ok := dlq.Pop()
	require.True(t, ok)
	assert.ErrorIs(t, entry.Error, ErrHandlerPanic)

	require.NoError(t, bus.Publish(shared.NewProjectSubmittedEvent("p2", "x", shared.Actor{UserID: "u"}, nil, nil)))
	entry, ok = dlq.Pop()
	require.True(t, ok)
	assert.True(t, shared.IsValidation(entry.Error))
}

func TestTimeoutMiddleware(t *testing.T) {
	h := TimeoutMiddleware(10 * time.Millisecond)(func(shared.Event) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, h(completed("p")), ErrHandlerTimeout)
}

func TestDeadLetterQueueEvictsOldest(t *testing.T) {
	q := NewDeadLetterQueue(2)
	for _, id := range []string{"a", "b", "c"} {
		q.Add(DeadLetterEntry{Event: completed(id)})
	}
	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Event.AggregateID())
}

// ══════════════════════════════════════════════════════════════════════════════
// AMQP
// ══════════════════════════════════════════════════════════════════════════════

type fakeChannel struct {
	mu        sync.Mutex
	published []amqp.Publishing
	keys      []string
	failures  []error
	closed    bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.failures) > 0 {
		err := c.failures[0]
		c.failures = c.failures[1:]
		return err
	}
	c.published = append(c.published, msg)
	c.keys = append(c.keys, key)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func newTestPublisher(ch Channel) *Publisher {
	p := NewPublisher(ch, DefaultAMQPConfig("amqp://unused"), logger.Nop())
	p.retrier = retry.New(retry.WithMaxAttempts(3), retry.WithInitialDelay(time.Millisecond))
	return p
}

func TestPublisherSendsPersistentJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)

	req, err := tasking.NewTaskProjectRequest("p1", "Graph search", "", "u-s1", "u-prof", time.Now())
	require.NoError(t, err)
	require.NoError(t, p.RequestTaskProject(context.Background(), req))

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, RoutingKeyTaskProject, ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.NotEmpty(t, msg.MessageId)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Body, &env))
	assert.Equal(t, msg.MessageId, env.ID)
	assert.Equal(t, "task_project.create", env.Type)

	var got tasking.TaskProjectRequest
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "p1", got.ProjectID)
	assert.Equal(t, []string{"u-s1", "u-prof"}, got.FollowerUserIDs)
}

func TestPublisherRetriesTransientFailures(t *testing.T) {
	ch := &fakeChannel{failures: []error{errors.New("flow control")}}
	p := newTestPublisher(ch)

	mail := notification.Mail{Template: notification.TemplateProjectApproval, ToUserIDs: []string{"u-prof"}}
	require.NoError(t, p.SendMail(context.Background(), mail))
	require.Len(t, ch.published, 1)
	assert.Equal(t, RoutingKeyMail, ch.keys[0])
	assert.Equal(t, "mail.project_approval", ch.published[0].Type)
}

func TestPublisherReopensClosedChannel(t *testing.T) {
	first := &fakeChannel{failures: []error{amqp.ErrClosed}}
	second := &fakeChannel{}
	p := newTestPublisher(first)
	p.reopen = func() (Channel, error) { return second, nil }

	mail := notification.Mail{Template: notification.TemplateApplicationAccept, ToUserIDs: []string{"u-s1"}}
	require.NoError(t, p.SendMail(context.Background(), mail))
	assert.True(t, first.closed)
	assert.Len(t, second.published, 1)
}

func TestPublisherSkipsMailWithoutRecipients(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)
	require.NoError(t, p.SendMail(context.Background(), notification.Mail{Template: "x"}))
	assert.Empty(t, ch.published)
}

func TestPublisherReportsExhaustedRetries(t *testing.T) {
	boom := errors.New("broker gone")
	ch := &fakeChannel{failures: []error{boom, boom, boom}}
	p := newTestPublisher(ch)

	err := p.SendMail(context.Background(), notification.Mail{Template: "x", ToEmails: []string{"a@b.c"}})
	assert.ErrorIs(t, err, boom)
}

func TestPublisherRoutesTrackerAndCalendarRequests(t *testing.T) {
	ch := &fakeChannel{}
	p := newTestPublisher(ch)
	ctx := context.Background()
	deadline := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

	task, err := tasking.NewMilestoneTask("m1", "p1", "Literature review", "", deadline, "u-s1", "u-prof", "u-man", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, p.RequestTask(ctx, task))

	cal, err := tasking.NewCommissionEvent("c1", "CS-1", deadline, []string{"u-prof", "u-s1"}, "u-man", time.Now())
	require.NoError(t, err)
	require.NoError(t, p.RequestCalendarEvent(ctx, cal))
	require.NoError(t, p.CancelCalendarEvent(ctx, tasking.CalendarEventCancel{Kind: tasking.EventCommission, RelatedID: "c1"}))

	assert.Equal(t, []string{RoutingKeyTask, RoutingKeyCalendarCreate, RoutingKeyCalendarCancel}, ch.keys)
	types := make([]string, 0, len(ch.published))
	for _, msg := range ch.published {
		types = append(types, msg.Type)
	}
	assert.Equal(t, []string{"task.create", "calendar_event.create.commission", "calendar_event.cancel.commission"}, types)

	var env Envelope
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &env))
	var got tasking.TaskRequest
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "m1", got.MilestoneID)
	assert.True(t, deadline.Equal(got.Deadline))
}

func TestTopologyBindsEveryRoutingKey(t *testing.T) {
	cfg := DefaultAMQPConfig("amqp://unused")
	queues := map[string][]string{}
	for _, b := range topology(cfg) {
		queues[b.queue] = append(queues[b.queue], b.key)
	}
	assert.Equal(t, map[string][]string{
		"palms.mail":          {RoutingKeyMail},
		"palms.task_projects": {RoutingKeyTaskProject, RoutingKeyTask},
		"palms.calendar":      {RoutingKeyCalendarCreate, RoutingKeyCalendarCancel},
	}, queues)
}
