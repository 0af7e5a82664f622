package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadron-project/squadron/internal/events"
)

func chatEvent(serverID string, id uint64) *events.Event {
	return &events.Event{
		ServerID:  serverID,
		ID:        id,
		Type:      events.TypeChat,
		Timestamp: time.Now().UTC(),
		Payload:   events.ChatPayload{Channel: "all", PlayerName: "p", Message: "m"},
	}
}

func TestHubDeliversToMatchingSubscribers(t *testing.T) {
	h := NewHub(0)

	chatSub := h.Subscribe("srv-1", []events.Type{events.TypeChat})
	defer chatSub.Close()
	tkSub := h.Subscribe("srv-1", []events.Type{events.TypeTeamkill})
	defer tkSub.Close()
	otherServer := h.Subscribe("srv-2", []events.Type{events.TypeChat})
	defer otherServer.Close()

	h.Publish(chatEvent("srv-1", 1))

	select {
	case msg := <-chatSub.C():
		assert.Equal(t, KindEvent, msg.Kind)
		assert.Equal(t, uint64(1), msg.Event.ID)
	case <-time.After(time.Second):
		t.Fatal("chat subscriber did not receive event")
	}

	assert.Empty(t, tkSub.C())
	assert.Empty(t, otherServer.C())
}

func TestHubExactlyOneCopyPerSubscriber(t *testing.T) {
	h := NewHub(0)

	a := h.Subscribe("srv-1", []events.Type{events.TypeChat})
	defer a.Close()
	b := h.Subscribe("srv-1", []events.Type{events.TypeChat})
	defer b.Close()

	h.Publish(chatEvent("srv-1", 1))

	require.Len(t, a.C(), 1)
	require.Len(t, b.C(), 1)
}

func TestHubSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	h := NewHub(4)

	slow := h.Subscribe("srv-1", []events.Type{events.TypeChat})
	defer slow.Close()
	fast := h.Subscribe("srv-1", []events.Type{events.TypeChat})
	defer fast.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more events than the slow subscriber's queue holds.
		// Nobody reads slow; publish must still complete promptly.
		for i := uint64(1); i <= 100; i++ {
			h.Publish(chatEvent("srv-1", i))
			// Drain fast so it never overflows.
			<-fast.C()
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The slow subscriber kept only a bounded number of messages and
	// they are the most recent ones.
	assert.LessOrEqual(t, len(slow.C()), 4)
	assert.Greater(t, slow.Dropped(), uint64(0))

	var last uint64
	for len(slow.C()) > 0 {
		msg := <-slow.C()
		assert.Greater(t, msg.Event.ID, last)
		last = msg.Event.ID
	}
	assert.Equal(t, uint64(100), last)
}

func TestHubStatusBypassesTypeFilter(t *testing.T) {
	h := NewHub(0)

	sub := h.Subscribe("srv-1", []events.Type{events.TypeTeamkill})
	defer sub.Close()

	h.PublishStatus("srv-1", "connecting", "")

	select {
	case msg := <-sub.C():
		assert.Equal(t, KindStatus, msg.Kind)
		assert.Equal(t, "connecting", msg.Status.State)
	case <-time.After(time.Second):
		t.Fatal("status message not delivered")
	}
}

func TestHubCloseUnregisters(t *testing.T) {
	h := NewHub(0)

	sub := h.Subscribe("srv-1", []events.Type{events.TypeChat})
	require.Equal(t, 1, h.SubscriberCount("srv-1"))

	sub.Close()
	sub.Close() // idempotent
	assert.Equal(t, 0, h.SubscriberCount("srv-1"))

	// Channel closes so consumer loops terminate.
	_, open := <-sub.C()
	assert.False(t, open)

	// Publishing after close must not panic.
	h.Publish(chatEvent("srv-1", 1))
}
