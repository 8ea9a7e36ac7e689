package markov

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	m := catCorpus(t)

	if err := r.Register("alice", m); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	got, err := r.Get("alice")
	if err != nil || got != m {
		t.Fatalf("Get() = %p, %v, want %p", got, err, m)
	}
	if _, err := r.Get("bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
	if err := r.Register("", m); err == nil {
		t.Error("Register() with empty name succeeded")
	}
	if err := r.Register("bob", nil); err == nil {
		t.Error("Register() with nil model succeeded")
	}

	_ = r.Register("carol", m)
	if names := r.Names(); !slices.Equal(names, []string{"alice", "carol"}) {
		t.Errorf("Names() = %v", names)
	}
	if err := r.Remove("carol"); err != nil {
		t.Errorf("Remove() error = %v", err)
	}
	if err := r.Remove("carol"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove(unknown) error = %v, want ErrNotFound", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryGenerateFor(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("alice", catCorpus(t))

	line, ok, err := r.GenerateFor("nobody", 5)
	if !errors.Is(err, ErrNotFound) || ok || line != "" {
		t.Errorf("GenerateFor(unknown) = %q, %v, %v, want ErrNotFound", line, ok, err)
	}

	// Exhaustion is not an error.
	line, ok, err = r.GenerateFor("alice", 5, WithOverlapLimit(2), WithSeed(3))
	if err != nil || ok || line != "" {
		t.Errorf("GenerateFor() = %q, %v, %v, want absent without error", line, ok, err)
	}

	line, ok, err = r.GenerateFor("alice", 5, WithOverlapLimit(0), WithSeed(3))
	if err != nil || !ok || (line != "the cat sat" && line != "the cat ran") {
		t.Errorf("GenerateFor() = %q, %v, %v", line, ok, err)
	}
}

func TestRegistryReplaceKeepsSnapshots(t *testing.T) {
	r := NewRegistry()
	old := catCorpus(t)
	_ = r.Register("alice", old)

	held, _ := r.Get("alice")
	replacement := mustBuild(t, words("a dog barked"), 2)
	if err := r.Register("alice", replacement); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.Get("alice"); got != replacement {
		t.Error("Register() did not replace the model")
	}
	if line, ok := Generate(held, 5, WithOverlapLimit(0)); !ok || line == "a dog barked" {
		t.Errorf("held snapshot generated %q, %v", line, ok)
	}

	if err := r.Replace(map[string]*Model{"bob": old}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get("alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Replace error = %v, want ErrNotFound", err)
	}
	if err := r.Replace(map[string]*Model{"bad": nil}); err == nil {
		t.Error("Replace() with nil model succeeded")
	}
	if _, err := r.Get("bob"); err != nil {
		t.Error("failed Replace() changed the registry")
	}
}

func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("alice", catCorpus(t))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				if _, _, err := r.GenerateFor("alice", 3, WithOverlapLimit(0), WithSeed(uint64(i*100+j))); err != nil {
					t.Errorf("GenerateFor() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := range 50 {
			_ = r.Register("alice", mustBuild(t, words(fmt.Sprintf("sentence number %d", j)), 2))
			_ = r.Register(fmt.Sprintf("extra%d", j), catCorpus(t))
		}
	}()
	wg.Wait()

	if r.Len() != 51 {
		t.Errorf("Len() = %d, want 51", r.Len())
	}
}
