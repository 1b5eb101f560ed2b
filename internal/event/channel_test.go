package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPostCoalescesDuplicates(t *testing.T) {
	t.Parallel()
	c := NewChannel()
	c.Post(Conditions)
	c.Post(Conditions)
	c.Post(Time)

	got, err := c.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if want := SetOf(Conditions, Time); got != want {
		t.Fatalf("Drain = %s, want %s", got, want)
	}
	if p := c.Pending(); !p.Empty() {
		t.Fatalf("pending after drain = %s, want none", p)
	}
}

func TestDrainBlocksUntilPost(t *testing.T) {
	t.Parallel()
	c := NewChannel()

	done := make(chan Set, 1)
	go func() {
		s, err := c.Drain(context.Background())
		if err != nil {
			t.Errorf("Drain: %v", err)
		}
		done <- s
	}()

	select {
	case s := <-done:
		t.Fatalf("Drain returned %s before any post", s)
	case <-time.After(50 * time.Millisecond):
	}

	c.Post(Label)
	select {
	case s := <-done:
		if s != SetOf(Label) {
			t.Fatalf("Drain = %s, want label", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return after post")
	}
}

func TestDrainHonorsContext(t *testing.T) {
	t.Parallel()
	c := NewChannel()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Drain(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain err = %v, want deadline exceeded", err)
	}
}

func TestStaleWakeTokenDoesNotReturnEmptySet(t *testing.T) {
	t.Parallel()
	c := NewChannel()
	c.Post(Time)
	c.Post(TideChart) // second wake is dropped, first stays buffered

	if s, _ := c.Drain(context.Background()); s != SetOf(Time, TideChart) {
		t.Fatalf("first drain = %s", s)
	}

	// A wake token is still buffered from the first post; Drain must not
	// report an empty set because of it.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s, err := c.Drain(ctx)
	if err == nil {
		t.Fatalf("second drain returned %s, want timeout", s)
	}
}

func TestConcurrentPostsAreNotLost(t *testing.T) {
	t.Parallel()
	c := NewChannel()
	kinds := All.Kinds()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Post(kinds[i%len(kinds)])
		}(i)
	}
	wg.Wait()

	got, err := c.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got != All {
		t.Fatalf("Drain = %s, want %s", got, All)
	}
}

func TestPostDoesNotAllocate(t *testing.T) {
	c := NewChannel()
	allocs := testing.AllocsPerRun(1000, func() {
		c.Post(Time)
		c.Post(Conditions)
	})
	if allocs != 0 {
		t.Fatalf("Post allocated %.1f times per run", allocs)
	}
}

func TestSetString(t *testing.T) {
	t.Parallel()
	if got := SetOf(Time, Conditions).String(); got != "conditions|time" {
		t.Fatalf("String = %q", got)
	}
	if got := Set(0).String(); got != "none" {
		t.Fatalf("String = %q", got)
	}
}
