package memory_test

import (
	"testing"

	"github.com/victornm/flashgame/internal/store"
	"github.com/victornm/flashgame/internal/store/memory"
	"github.com/victornm/flashgame/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Gateway {
		return memory.New()
	})
}
