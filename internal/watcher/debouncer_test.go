package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_CoalescesModifyBurst(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "Packs/A/Playbooks/p.yml", Operation: OpModify})
	}

	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, OpModify, events[0].Operation)
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "Packs/A/Scripts/s.yml", Operation: OpCreate})
	d.Add(FileEvent{Path: "Packs/A/Scripts/s.yml", Operation: OpDelete})
	d.Add(FileEvent{Path: "Packs/B/Playbooks/p.yml", Operation: OpModify})

	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, "Packs/B/Playbooks/p.yml", events[0].Path)
}

func TestDebouncer_DeleteThenCreateBecomesModify(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "Packs/A/Playbooks/p.yml", Operation: OpDelete})
	d.Add(FileEvent{Path: "Packs/A/Playbooks/p.yml", Operation: OpCreate})

	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, OpModify, events[0].Operation)
}

func TestDebouncer_CreateThenModifyStaysCreate(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "Packs/A/Playbooks/p.yml", Operation: OpCreate})
	d.Add(FileEvent{Path: "Packs/A/Playbooks/p.yml", Operation: OpModify})

	events := collectBatch(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestDebouncer_SeparatePathsKeptApart(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.yml", Operation: OpModify})
	d.Add(FileEvent{Path: "b.yml", Operation: OpModify})

	events := collectBatch(t, d)
	assert.Len(t, events, 2)
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "a.yml", Operation: OpModify})
}
