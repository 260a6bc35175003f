package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	name    string
	err     error
	sent    int
	title   string
	message string
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	f.sent++
	f.title = title
	f.message = message
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifier_Notify_FiltersUnlistedEvent(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, []string{"order.settled"}, discardLogger())

	err := n.Notify(context.Background(), "order.failed", "title", "message")

	assert.NoError(t, err)
	assert.Equal(t, 0, sender.sent)
}

func TestNotifier_Notify_DeliversAllowedEvent(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, []string{"order.settled"}, discardLogger())

	err := n.Notify(context.Background(), "order.settled", "title", "message")

	assert.NoError(t, err)
	assert.Equal(t, 1, sender.sent)
	assert.Equal(t, "title", sender.title)
}

func TestNotifier_Notify_AllowsEverythingWhenEventsEmpty(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	err := n.Notify(context.Background(), "order.anything", "title", "message")

	assert.NoError(t, err)
	assert.Equal(t, 1, sender.sent)
}

func TestNotifier_Notify_DispatchesToAllSenders(t *testing.T) {
	s1 := &fakeSender{name: "telegram"}
	s2 := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{s1, s2}, nil, discardLogger())

	err := n.Notify(context.Background(), "order.settled", "title", "message")

	assert.NoError(t, err)
	assert.Equal(t, 1, s1.sent)
	assert.Equal(t, 1, s2.sent)
}

func TestNotifier_Notify_CombinesPartialFailures(t *testing.T) {
	ok := &fakeSender{name: "telegram"}
	failing := &fakeSender{name: "discord", err: errors.New("boom")}
	n := NewNotifier([]Sender{ok, failing}, nil, discardLogger())

	err := n.Notify(context.Background(), "order.settled", "title", "message")

	assert.Error(t, err)
	assert.Equal(t, 1, ok.sent)
	assert.Equal(t, 1, failing.sent)
}

func TestNotifier_NotifyAll_BypassesEventFilter(t *testing.T) {
	sender := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, []string{"order.settled"}, discardLogger())

	err := n.NotifyAll(context.Background(), "title", "message")

	assert.NoError(t, err)
	assert.Equal(t, 1, sender.sent)
}

func TestNotifier_Notify_NoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	err := n.Notify(context.Background(), "order.settled", "title", "message")
	assert.NoError(t, err)
}
