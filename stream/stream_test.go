package stream_test

import (
	"sync"
	"testing"
	"time"

	"github.com/ragdesk/chatkit/stream"
)

func TestChunks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "three sentences",
			text: "Step one. Step two. Step three.",
			want: []string{"Step one.", "Step two.", "Step three."},
		},
		{
			name: "mixed terminators",
			text: "Really? Yes! Fine.",
			want: []string{"Really?", "Yes!", "Fine."},
		},
		{
			name: "no punctuation is one chunk",
			text: "just a fragment with no ending",
			want: []string{"just a fragment with no ending"},
		},
		{
			name: "trailing fragment kept",
			text: "First sentence. trailing words",
			want: []string{"First sentence.", "trailing words"},
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
		{
			name: "whitespace only",
			text: "   \n\t  ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stream.Chunks(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks %q, want %d", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunks_Deterministic(t *testing.T) {
	text := "One. Two. Three."
	first := stream.Chunks(text)
	second := stream.Chunks(text)

	if len(first) != len(second) {
		t.Fatal("Chunks is not deterministic")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between calls: %q vs %q", i, first[i], second[i])
		}
	}
}

// fastSimulator removes all pacing so tests never wait on wall time.
func fastSimulator() *stream.Simulator {
	return stream.New(
		stream.WithBaseDelay(0),
		stream.WithPerCharDelay(0),
		stream.WithJitter(func() time.Duration { return 0 }),
	)
}

type updateRecorder struct {
	mu      sync.Mutex
	updates []string
	flags   []bool
}

func (r *updateRecorder) record(revealed string, streaming bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, revealed)
	r.flags = append(r.flags, streaming)
}

func (r *updateRecorder) snapshot() ([]string, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.updates...), append([]bool(nil), r.flags...)
}

func TestSimulator_RevealsChunksInOrder(t *testing.T) {
	rec := &updateRecorder{}
	task := fastSimulator().Start("Step one. Step two. Step three.", rec.record)

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}

	updates, flags := rec.snapshot()
	want := []string{
		"Step one.",
		"Step one. Step two.",
		"Step one. Step two. Step three.",
	}

	if len(updates) != len(want) {
		t.Fatalf("got %d updates %q, want %d", len(updates), updates, len(want))
	}
	for i := range want {
		if updates[i] != want[i] {
			t.Errorf("update %d: got %q, want %q", i, updates[i], want[i])
		}
	}

	// Streaming stays set until the final chunk, then clears exactly once.
	for i, flag := range flags[:len(flags)-1] {
		if !flag {
			t.Errorf("update %d: streaming flag cleared early", i)
		}
	}
	if flags[len(flags)-1] {
		t.Error("streaming flag still set after final chunk")
	}
}

func TestSimulator_FirstChunkImmediate(t *testing.T) {
	rec := &updateRecorder{}
	// Large delays: only the synchronous first reveal can have happened by
	// the time Start returns.
	sim := stream.New(
		stream.WithBaseDelay(time.Hour),
		stream.WithJitter(func() time.Duration { return 0 }),
	)
	task := sim.Start("First. Second.", rec.record)
	defer task.Cancel()

	updates, flags := rec.snapshot()
	if len(updates) != 1 {
		t.Fatalf("got %d updates at Start return, want 1", len(updates))
	}
	if updates[0] != "First." {
		t.Errorf("got first reveal %q, want %q", updates[0], "First.")
	}
	if !flags[0] {
		t.Error("streaming flag should be set while chunks remain")
	}
}

func TestSimulator_SingleChunk_NoStreaming(t *testing.T) {
	rec := &updateRecorder{}
	task := fastSimulator().Start("no terminal punctuation here", rec.record)
	<-task.Done()

	updates, flags := rec.snapshot()
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	if flags[0] {
		t.Error("single-chunk reveal should finish with streaming false")
	}
}

func TestSimulator_EmptyText(t *testing.T) {
	rec := &updateRecorder{}
	task := fastSimulator().Start("", rec.record)
	<-task.Done()

	updates, flags := rec.snapshot()
	if len(updates) != 1 || updates[0] != "" {
		t.Fatalf("got updates %q, want one empty update", updates)
	}
	if flags[0] {
		t.Error("empty reveal should not report streaming")
	}
}

func TestTask_Cancel_StopsPendingReveal(t *testing.T) {
	rec := &updateRecorder{}
	sim := stream.New(
		stream.WithBaseDelay(time.Hour),
		stream.WithJitter(func() time.Duration { return 0 }),
	)
	task := sim.Start("First. Second. Third.", rec.record)

	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled task did not settle")
	}

	updates, flags := rec.snapshot()
	// First chunk was revealed synchronously; cancellation adds exactly one
	// final update that clears the streaming flag without new text.
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if updates[1] != "First." {
		t.Errorf("cancel revealed extra text: %q", updates[1])
	}
	if flags[1] {
		t.Error("streaming flag should be cleared by cancel")
	}
}

func TestTask_Cancel_Idempotent(t *testing.T) {
	rec := &updateRecorder{}
	task := fastSimulator().Start("One. Two.", rec.record)
	<-task.Done()

	// Cancelling a settled task must not panic or emit further updates.
	task.Cancel()
	task.Cancel()

	updates, _ := rec.snapshot()
	if len(updates) != 2 {
		t.Errorf("got %d updates after late cancel, want 2", len(updates))
	}
}

func TestSimulator_DelayCappedAtMax(t *testing.T) {
	// A long chunk with a tiny cap must still settle quickly.
	sim := stream.New(
		stream.WithBaseDelay(10*time.Millisecond),
		stream.WithPerCharDelay(time.Hour),
		stream.WithMaxDelay(20*time.Millisecond),
		stream.WithJitter(func() time.Duration { return 0 }),
	)

	rec := &updateRecorder{}
	task := sim.Start("Short. This second chunk is considerably longer than the first.", rec.record)

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capped delay was not applied")
	}
}
