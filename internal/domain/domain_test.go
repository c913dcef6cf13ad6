package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/flashgame/internal/domain"
)

func TestIdentity_Key(t *testing.T) {
	tests := map[string]struct {
		a, b     domain.Identity
		wantSame bool
	}{
		"guests with the same name in different case are the same player": {
			a:        domain.Identity{Username: "Alice"},
			b:        domain.Identity{Username: " alice "},
			wantSame: true,
		},
		"repeated inner whitespace is collapsed": {
			a:        domain.Identity{Username: "Mary  Jane"},
			b:        domain.Identity{Username: "mary jane"},
			wantSame: true,
		},
		"punctuation is significant": {
			a:        domain.Identity{Username: "Anna"},
			b:        domain.Identity{Username: "Anna!"},
			wantSame: false,
		},
		"symbol-only names stay distinct": {
			a:        domain.Identity{Username: "!!!"},
			b:        domain.Identity{Username: "???"},
			wantSame: false,
		},
		"emoji names stay distinct": {
			a:        domain.Identity{Username: "🙂"},
			b:        domain.Identity{Username: "🐱"},
			wantSame: false,
		},
		"non-latin names stay distinct": {
			a:        domain.Identity{Username: "Ана"},
			b:        domain.Identity{Username: "Аня"},
			wantSame: false,
		},
		"authenticated users are keyed by user id, not name": {
			a:        domain.Identity{UserID: "u1", Username: "Alice"},
			b:        domain.Identity{UserID: "u2", Username: "Alice"},
			wantSame: false,
		},
		"a guest never collides with a user of the same name": {
			a:        domain.Identity{UserID: "alice", Username: "alice"},
			b:        domain.Identity{Username: "alice"},
			wantSame: false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.wantSame, tt.a.Key() == tt.b.Key(), "%q vs %q", tt.a.Key(), tt.b.Key())
		})
	}
}

func TestIdentity_KeyNeverEmptyForGuests(t *testing.T) {
	for _, name := range []string{"!!!", "🙂", "日本"} {
		assert.NotEqual(t, "guest:", domain.Identity{Username: name}.Key(), name)
	}
}

func TestStatus_Order(t *testing.T) {
	assert.Less(t, domain.StatusWaiting.Order(), domain.StatusInProgress.Order())
	assert.Less(t, domain.StatusInProgress.Order(), domain.StatusCompleted.Order())
	assert.Equal(t, -1, domain.Status("paused").Order())
}

func TestGameSession_Deadline(t *testing.T) {
	s := domain.GameSession{TimeLimitSeconds: 30}
	_, ok := s.Deadline()
	assert.False(t, ok, "no deadline before start")

	started := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s.StartedAt = &started
	d, ok := s.Deadline()
	assert.True(t, ok)
	assert.Equal(t, started.Add(30*time.Second), d)
}
