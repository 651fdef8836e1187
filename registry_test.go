package rhi

import (
	"sync"
	"testing"
)

func TestRegistryRegisterResolve(t *testing.T) {
	var r Registry[string]

	h := r.Register("texture-a")
	if h == InvalidID {
		t.Fatal("Register must not return the invalid handle")
	}
	got, ok := r.Resolve(h)
	if !ok || got != "texture-a" {
		t.Errorf("Resolve = %q, %v; want texture-a, true", got, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegistryZeroHandle(t *testing.T) {
	var r Registry[int]
	if _, ok := r.Resolve(InvalidID); ok {
		t.Error("the zero handle must never resolve")
	}
	if r.Unregister(InvalidID) {
		t.Error("the zero handle must not unregister")
	}
}

func TestRegistryGenerationInvalidation(t *testing.T) {
	var r Registry[string]

	old := r.Register("stale")
	if !r.Unregister(old) {
		t.Fatal("Unregister must report the handle live")
	}
	if _, ok := r.Resolve(old); ok {
		t.Fatal("unregistered handle must not resolve")
	}

	// The freed slot is recycled; the old handle must not alias the new
	// occupant.
	fresh := r.Register("fresh")
	if fresh == old {
		t.Fatal("recycled slot must carry a new generation")
	}
	if _, ok := r.Resolve(old); ok {
		t.Error("stale handle must not resolve to the recycled slot")
	}
	if got, ok := r.Resolve(fresh); !ok || got != "fresh" {
		t.Errorf("Resolve(fresh) = %q, %v; want fresh, true", got, ok)
	}
	if r.Unregister(old) {
		t.Error("stale handle must not unregister the recycled slot")
	}
}

func TestRegistryConcurrent(t *testing.T) {
	var r Registry[int]
	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h := r.Register(w*perWorker + i)
				if v, ok := r.Resolve(h); !ok || v != w*perWorker+i {
					t.Errorf("Resolve after Register = %d, %v", v, ok)
					return
				}
				if i%2 == 0 {
					r.Unregister(h)
				}
			}
		}(w)
	}
	wg.Wait()

	want := workers * perWorker / 2
	if r.Len() != want {
		t.Errorf("Len = %d, want %d", r.Len(), want)
	}
}
