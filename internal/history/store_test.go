package history_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voxpipe/voxpipe/internal/history"
)

func TestMemStore_AppendAndRecall(t *testing.T) {
	t.Parallel()
	s := history.NewMemStore(10)
	ctx := context.Background()

	s.AppendTurn(ctx, "s1", history.Turn{Role: "user", Text: "question", At: time.Now()})
	s.AppendTurn(ctx, "s1", history.Turn{Role: "assistant", Text: "answer", At: time.Now()})

	turns, err := s.RecentTurns(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns; want 2", len(turns))
	}
	if turns[0].Text != "question" || turns[1].Text != "answer" {
		t.Errorf("turns out of order: %+v", turns)
	}
}

func TestMemStore_RetentionBound(t *testing.T) {
	t.Parallel()
	s := history.NewMemStore(3)
	ctx := context.Background()

	for i := range 10 {
		s.AppendTurn(ctx, "s1", history.Turn{Role: "user", Text: fmt.Sprintf("turn %d", i)})
	}

	turns, _ := s.RecentTurns(ctx, "s1", 100)
	if len(turns) != 3 {
		t.Fatalf("retained %d turns; want 3", len(turns))
	}
	if turns[0].Text != "turn 7" || turns[2].Text != "turn 9" {
		t.Errorf("retention kept wrong turns: %+v", turns)
	}
}

func TestMemStore_RecentTurnsLimit(t *testing.T) {
	t.Parallel()
	s := history.NewMemStore(10)
	ctx := context.Background()

	for i := range 5 {
		s.AppendTurn(ctx, "s1", history.Turn{Text: fmt.Sprintf("t%d", i)})
	}

	turns, _ := s.RecentTurns(ctx, "s1", 2)
	if len(turns) != 2 {
		t.Fatalf("got %d turns; want 2", len(turns))
	}
	if turns[1].Text != "t4" {
		t.Errorf("last turn = %q; want t4", turns[1].Text)
	}
}

func TestMemStore_UnknownSessionEmpty(t *testing.T) {
	t.Parallel()
	s := history.NewMemStore(10)

	turns, err := s.RecentTurns(context.Background(), "never-seen", 5)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("got %d turns for unknown session; want 0", len(turns))
	}
}

func TestMemStore_ConcurrentSessions(t *testing.T) {
	t.Parallel()
	s := history.NewMemStore(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			for j := range 20 {
				s.AppendTurn(ctx, id, history.Turn{Text: fmt.Sprintf("%d", j)})
			}
		}()
	}
	wg.Wait()

	for i := range 8 {
		turns, _ := s.RecentTurns(ctx, fmt.Sprintf("s%d", i), 100)
		if len(turns) != 20 {
			t.Errorf("session s%d has %d turns; want 20", i, len(turns))
		}
	}
}
