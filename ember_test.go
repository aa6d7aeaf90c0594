package ember

import (
	"testing"
)

func TestDouble_SwapRoles(t *testing.T) {
	var d Double[[]int]

	*d.Write() = append(*d.Write(), 1)
	if len(*d.Read()) != 0 {
		t.Fatal("read slot should be empty before swap")
	}

	readable := d.Swap()
	if readable != d.ReadIndex() {
		t.Fatalf("Swap returned %d, ReadIndex is %d", readable, d.ReadIndex())
	}
	if len(*d.Read()) != 1 || (*d.Read())[0] != 1 {
		t.Fatal("previous write slot should be readable after swap")
	}
	if len(*d.Write()) != 0 {
		t.Fatal("previous read slot should be writable after swap")
	}

	// A second swap restores the original roles.
	d.Swap()
	if len(*d.Write()) != 1 {
		t.Fatal("double swap should restore roles")
	}
}

func TestClock_Advance(t *testing.T) {
	c := Clock{}
	c = c.Advance(0.5)
	c = c.Advance(0.25)

	if c.Frame != 2 {
		t.Fatalf("expected frame 2, got %d", c.Frame)
	}
	if c.Time != 0.75 {
		t.Fatalf("expected time 0.75, got %v", c.Time)
	}
	if c.Delta != 0.25 {
		t.Fatalf("expected delta 0.25, got %v", c.Delta)
	}
}
