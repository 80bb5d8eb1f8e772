package gateway

import "testing"

func TestStampedeTracker_BeginEnd(t *testing.T) {
	st := newStampedeTracker()

	if n := st.begin("k"); n != 1 {
		t.Errorf("begin() = %d, want 1", n)
	}
	if n := st.begin("k"); n != 2 {
		t.Errorf("begin() = %d, want 2", n)
	}
	if n := st.begin("other"); n != 1 {
		t.Errorf("begin(other) = %d, want 1", n)
	}
	st.end("k")
	st.end("k")
	if _, ok := st.activeMisses["k"]; ok {
		t.Error("key should be removed once all misses end")
	}
	st.end("missing") // must not go negative or panic
	if _, ok := st.activeMisses["missing"]; ok {
		t.Error("end() on unknown key should not create an entry")
	}
}
