package sessionlog

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
)

func TestRingKeepsMostRecent(t *testing.T) {
	r := NewRing(3)
	for i := range 5 {
		r.Add(Entry{Message: fmt.Sprintf("m%d", i)})
	}

	var got []string
	for _, e := range r.Entries() {
		got = append(got, e.Message)
	}
	if want := []string{"m2", "m3", "m4"}; !slices.Equal(got, want) {
		t.Fatalf("Entries() = %v, want %v", got, want)
	}
}

func TestRingPartiallyFilled(t *testing.T) {
	r := NewRing(4)
	r.Add(Entry{Message: "[config] a"})
	r.Add(Entry{Message: "b", Detail: "k=v"})

	if got, want := r.Lines(), []string{"a", "b (k=v)"}; !slices.Equal(got, want) {
		t.Fatalf("Lines() = %v, want %v", got, want)
	}
}

func TestRingDefaultSize(t *testing.T) {
	r := NewRing(0)
	for range DefaultRingSize + 10 {
		r.Add(Entry{Message: "x"})
	}
	if n := len(r.Entries()); n != DefaultRingSize {
		t.Fatalf("len(Entries()) = %d, want %d", n, DefaultRingSize)
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing(2)
	r.Add(Entry{Message: "a"})
	r.Add(Entry{Message: "b"})
	r.Add(Entry{Message: "c"})
	r.Clear()
	if n := len(r.Entries()); n != 0 {
		t.Fatalf("len(Entries()) after Clear = %d", n)
	}
	r.Add(Entry{Message: "d"})
	if got := r.Lines(); !slices.Equal(got, []string{"d"}) {
		t.Fatalf("Lines() = %v, want [d]", got)
	}
}

func TestRingOnAdd(t *testing.T) {
	r := NewRing(2)
	var seen []string
	r.OnAdd(func(e Entry) {
		// Reading the ring from the listener must not deadlock.
		_ = r.Entries()
		seen = append(seen, e.Message)
	})
	r.Add(Entry{Message: "a"})
	r.Add(Entry{Message: "b"})
	if !slices.Equal(seen, []string{"a", "b"}) {
		t.Fatalf("listener saw %v", seen)
	}
}

func TestRingAsTeeCallback(t *testing.T) {
	r := NewRing(10)
	logger := slog.New(NewTeeHandler(slog.NewTextHandler(io.Discard, nil), slog.LevelWarn, r.Add))

	logger.Info("[process] paused")
	logger.Warn("[process] suspend tool not found", "tool", "PsSuspend.exe")

	lines := r.Lines()
	if len(lines) != 1 || lines[0] != "suspend tool not found (tool=PsSuspend.exe)" {
		t.Fatalf("Lines() = %v", lines)
	}
}
