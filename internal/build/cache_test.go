package build

import "testing"

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	c.Put(1, Artifact{Asm: []byte("one")})
	c.Put(2, Artifact{Asm: []byte("two")})
	if _, ok := c.Get(1); !ok {
		t.Fatalf("expected hit for key 1")
	}
	c.Put(3, Artifact{Asm: []byte("three")}) // evicts 2
	if _, ok := c.Get(2); ok {
		t.Fatalf("expected eviction of key 2")
	}
	if _, ok := c.Get(1); !ok {
		t.Fatalf("expected key 1 to survive")
	}

	st := c.Stats()
	if st.Entries != 2 || st.Evictions != 1 || st.Bytes != int64(len("one")+len("three")) {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.Hits != 2 || st.Misses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %+v", st)
	}
}

func TestCachePutReplaces(t *testing.T) {
	c := NewCache(4)
	c.Put(7, Artifact{Asm: []byte("old")})
	c.Put(7, Artifact{Asm: []byte("newer")})
	a, ok := c.Get(7)
	if !ok || string(a.Asm) != "newer" {
		t.Fatalf("Expected replaced artifact, got %q", a.Asm)
	}
	if st := c.Stats(); st.Entries != 1 || st.Bytes != 5 {
		t.Errorf("unexpected stats %+v", st)
	}

	c.Invalidate(7)
	if _, ok := c.Get(7); ok {
		t.Error("Expected key 7 to be gone")
	}
	if st := c.Stats(); st.Entries != 0 || st.Bytes != 0 {
		t.Errorf("unexpected stats after invalidate %+v", st)
	}
}

func TestKeyFor(t *testing.T) {
	src := []byte("; minic-ir 1.0.0\n")
	if KeyFor(src, "a") != KeyFor(src, "a") {
		t.Error("Expected identical inputs to hash identically")
	}
	if KeyFor(src, "a") == KeyFor(src, "b") {
		t.Error("Expected the configuration to change the key")
	}
	// The fingerprint is length-prefixed, so moving bytes across the
	// boundary changes the key.
	if KeyFor([]byte("bc"), "a") == KeyFor([]byte("c"), "ab") {
		t.Error("Expected fingerprint and source to be kept apart")
	}
}
