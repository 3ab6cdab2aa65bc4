package rbac

import "testing"

func TestCan(t *testing.T) {
	tests := []struct {
		perm   Perm
		action Action
		want   bool
	}{
		{PermReadWrite, ActionRead, true},
		{PermReadWrite, ActionMove, true},
		{PermReadWrite, ActionDelete, true},
		{PermReadOnly, ActionRead, true},
		{PermReadOnly, ActionWrite, false},
		{PermReadOnly, ActionCreate, false},
		{Perm("admin"), ActionRead, false},
	}
	for _, tc := range tests {
		if got := Can(tc.perm, tc.action); got != tc.want {
			t.Fatalf("Can(%q, %q) = %v, want %v", tc.perm, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("rw") != PermReadWrite {
		t.Fatal("expected rw to survive")
	}
	if Normalize("RW") != PermReadOnly || Normalize("") != PermReadOnly {
		t.Fatal("expected unknown perms to become read-only")
	}
	if CanWrite(Normalize("bogus")) {
		t.Fatal("unknown perm must not write")
	}
}
