package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/flashgame/internal/domain"
	"github.com/victornm/flashgame/internal/event"
)

func TestBus_PublishSubscribe(t *testing.T) {
	type (
		inputs struct {
			published   []event.Event
			subscribers []subscriber
		}

		outputs struct {
			received map[string][]event.Event
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"a single subscriber should receive correct event": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("e1"),
						eventWithName("e2"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"e1"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("e1")}, out.received["s1"])
			},
		},

		"a single subscriber should receive all dispatched event": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("e1"),
						eventWithName("e1"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"e1"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("e1"), eventWithName("e1")}, out.received["s1"])
			},
		},

		"an event should be dispatched to all subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("e1"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"e1"},
						},
						{
							name:        "s2",
							subscribeTo: []string{"e1"},
						},
						{
							name:        "s3",
							subscribeTo: []string{"e1"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("e1")}, out.received["s1"])
				assert.ElementsMatch(t, []event.Event{eventWithName("e1")}, out.received["s2"])
				assert.ElementsMatch(t, []event.Event{eventWithName("e1")}, out.received["s3"])
			},
		},

		"multiple events should be dispatched correctly multiple subscribers": {
			arrange: func() inputs {
				return inputs{
					published: []event.Event{
						eventWithName("e1"),
						eventWithName("e2"),
						eventWithName("e1"),
						eventWithName("e3"),
					},
					subscribers: []subscriber{
						{
							name:        "s1",
							subscribeTo: []string{"e1"},
						},
						{
							name:        "s2",
							subscribeTo: []string{"e1", "e2"},
						},
						{
							name:        "s3",
							subscribeTo: []string{"e3", "e2"},
						},
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				assert.ElementsMatch(t, []event.Event{eventWithName("e1"), eventWithName("e1")}, out.received["s1"])
				assert.ElementsMatch(t, []event.Event{eventWithName("e1"), eventWithName("e1"), eventWithName("e2")}, out.received["s2"])
				assert.ElementsMatch(t, []event.Event{eventWithName("e2"), eventWithName("e3")}, out.received["s3"])
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()
			mu := sync.Mutex{}
			out := outputs{received: make(map[string][]event.Event)}

			b := event.NewBus()
			for _, s := range in.subscribers {
				for _, e := range s.subscribeTo {
					b.Subscribe(e, func(ctx context.Context, e event.Event) error {
						mu.Lock()
						out.received[s.name] = append(out.received[s.name], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range in.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, out)
		})
	}
}

type eventWithName string

func (e eventWithName) Name() string {
	return string(e)
}

type subscriber struct {
	name        string
	subscribeTo []string
}

func TestOn_TypedHandler(t *testing.T) {
	b := event.NewBus()

	var (
		mu  sync.Mutex
		got []string
	)
	event.On(b, func(_ context.Context, e eventWithName) error {
		mu.Lock()
		got = append(got, string(e))
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), eventWithName(""))
	b.Publish(context.Background(), eventWithName("other"))
	b.Stop()

	assert.Equal(t, []string{""}, got, "only events named like the zero value reach the typed handler")
}

func TestBus_NilPublishIsNoop(t *testing.T) {
	var b *event.Bus
	assert.NotPanics(t, func() {
		b.Publish(context.Background(), eventWithName("e1"))
	})
}

func TestOn_DomainEvents(t *testing.T) {
	type received struct {
		completed []domain.EventGameCompleted
		scores    []domain.EventScoreUpdated
	}

	tests := map[string]struct {
		published []event.Event
		assert    func(t *testing.T, got received)
	}{
		"a completed game reaches only its typed handler": {
			published: []event.Event{
				domain.EventGameCompleted{GameID: "g1", Trigger: domain.TriggerAllFinished},
			},
			assert: func(t *testing.T, got received) {
				require.Len(t, got.completed, 1)
				assert.Equal(t, "g1", got.completed[0].GameID)
				assert.Equal(t, domain.TriggerAllFinished, got.completed[0].Trigger)
				assert.Empty(t, got.scores)
			},
		},
		"score updates keep their fields": {
			published: []event.Event{
				domain.EventScoreUpdated{GameID: "g1", ParticipantID: "p1", Score: 1},
				domain.EventScoreUpdated{GameID: "g1", ParticipantID: "p2", Score: 3},
			},
			assert: func(t *testing.T, got received) {
				assert.ElementsMatch(t, []domain.EventScoreUpdated{
					{GameID: "g1", ParticipantID: "p1", Score: 1},
					{GameID: "g1", ParticipantID: "p2", Score: 3},
				}, got.scores)
				assert.Empty(t, got.completed)
			},
		},
		"an event of another type under the same name is dropped": {
			published: []event.Event{
				renamed{name: domain.EventNameGameCompleted},
				domain.EventGameCompleted{GameID: "g2", Trigger: domain.TriggerHostTimer},
			},
			assert: func(t *testing.T, got received) {
				require.Len(t, got.completed, 1)
				assert.Equal(t, "g2", got.completed[0].GameID)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var (
				mu  sync.Mutex
				got received
			)
			b := event.NewBus()
			event.On(b, func(_ context.Context, e domain.EventGameCompleted) error {
				mu.Lock()
				got.completed = append(got.completed, e)
				mu.Unlock()
				return nil
			})
			event.On(b, func(_ context.Context, e domain.EventScoreUpdated) error {
				mu.Lock()
				got.scores = append(got.scores, e)
				mu.Unlock()
				return nil
			})

			for _, e := range tt.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			tt.assert(t, got)
		})
	}
}

func TestBus_HandlerPanicDoesNotStopDispatch(t *testing.T) {
	b := event.NewBus()

	var (
		mu  sync.Mutex
		got []string
	)
	event.On(b, func(_ context.Context, e domain.EventParticipantFinished) error {
		if e.ParticipantID == "bad" {
			panic("boom")
		}
		mu.Lock()
		got = append(got, e.ParticipantID)
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), domain.EventParticipantFinished{GameID: "g1", ParticipantID: "bad"})
	b.Publish(context.Background(), domain.EventParticipantFinished{GameID: "g1", ParticipantID: "p1"})
	b.Stop()

	assert.Equal(t, []string{"p1"}, got)
}

type renamed struct{ name string }

func (e renamed) Name() string { return e.name }
