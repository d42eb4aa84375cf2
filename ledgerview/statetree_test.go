package ledgerview

import "testing"

func TestEmptyStateTreeRootStable(t *testing.T) {
	a := EmptyStateTree()
	b := EmptyStateTree()
	if a.RootHash() != b.RootHash() {
		t.Fatalf("two empty state trees disagree on root hash")
	}
}

func TestApplyIsPure(t *testing.T) {
	t0 := EmptyStateTree()
	root0 := t0.RootHash()

	t1, err := t0.Apply(map[string][]byte{"k": []byte("v")})
	if err != nil {
		t.Fatalf("Apply: %s", err)
	}
	if t0.RootHash() != root0 {
		t.Fatalf("Apply mutated the receiver")
	}
	if t1.RootHash() == root0 {
		t.Fatalf("Apply with a real write did not change the root")
	}
}

func TestApplySameWritesSameRoot(t *testing.T) {
	t0 := EmptyStateTree()
	a, err := t0.Apply(map[string][]byte{"k1": []byte("v1"), "k2": []byte("v2")})
	if err != nil {
		t.Fatalf("Apply: %s", err)
	}
	b, err := t0.Apply(map[string][]byte{"k1": []byte("v1"), "k2": []byte("v2")})
	if err != nil {
		t.Fatalf("Apply: %s", err)
	}
	if a.RootHash() != b.RootHash() {
		t.Fatalf("identical write sets produced different roots")
	}
}

func TestApplyOverwriteChangesRoot(t *testing.T) {
	t0 := EmptyStateTree()
	t1, err := t0.Apply(map[string][]byte{"k": []byte("v1")})
	if err != nil {
		t.Fatalf("Apply: %s", err)
	}
	t2, err := t1.Apply(map[string][]byte{"k": []byte("v2")})
	if err != nil {
		t.Fatalf("Apply: %s", err)
	}
	if t1.RootHash() == t2.RootHash() {
		t.Fatalf("overwriting a key's value did not change the root")
	}

	direct, err := EmptyStateTree().Apply(map[string][]byte{"k": []byte("v2")})
	if err != nil {
		t.Fatalf("Apply: %s", err)
	}
	if t2.RootHash() != direct.RootHash() {
		t.Fatalf("overwrite-via-two-applies root %s does not match a single direct apply %s; stale commitment leaf was not deleted", t2.RootHash(), direct.RootHash())
	}
}

func TestFromPersistedRootFoldsIntoRootHash(t *testing.T) {
	base := EmptyStateTree()
	applied, err := base.Apply(map[string][]byte{"k": []byte("v")})
	if err != nil {
		t.Fatalf("Apply: %s", err)
	}
	persistedRoot := applied.RootHash()

	restored := FromPersistedRoot(persistedRoot)
	if restored.RootHash() == EmptyStateTree().RootHash() {
		t.Fatalf("FromPersistedRoot with a non-zero root produced the same hash as an empty tree")
	}

	further, err := restored.Apply(map[string][]byte{"k2": []byte("v2")})
	if err != nil {
		t.Fatalf("Apply: %s", err)
	}
	if further.RootHash() == restored.RootHash() {
		t.Fatalf("applying an additional write on a restored tree did not change its root")
	}
}
