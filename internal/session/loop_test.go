package session

import (
	"context"
	"testing"
	"time"
)

func TestLoop_Order(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLoop(ctx, 4)
	go l.Run()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Do(func() {}); err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order: got %v", got)
		}
	}
	if len(got) != 10 {
		t.Errorf("ran %d tasks, want 10", len(got))
	}
}

func TestLoop_PostAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop(ctx, 1)
	cancel()

	done := make(chan bool)
	go func() {
		done <- l.Post(func() {})
	}()
	select {
	case ok := <-done:
		if ok {
			t.Error("Post on cancelled loop: got true")
		}
	case <-time.After(time.Second):
		t.Fatal("Post blocked after cancel")
	}
	if err := l.Do(func() {}); err == nil {
		t.Error("Do after cancel: want error")
	}
}
