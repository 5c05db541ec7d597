package ring

import "testing"

func TestAppendBelowCapacity(t *testing.T) {
	b := New[int](4)
	b.Append(1)
	b.Append(2)
	b.Append(3)

	if got := b.Len(); got != 3 {
		t.Errorf("Len() = %d, want %d", got, 3)
	}
	want := []int{1, 2, 3}
	got := b.Items()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Items()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAppendEvictsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Append(i)
	}

	if got := b.Len(); got != 3 {
		t.Errorf("Len() = %d, want %d", got, 3)
	}
	want := []int{3, 4, 5}
	got := b.Items()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Items()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLast(t *testing.T) {
	b := New[string](2)
	if _, ok := b.Last(); ok {
		t.Error("Last() on empty buffer returned ok = true")
	}

	b.Append("a")
	b.Append("b")
	b.Append("c")
	if last, ok := b.Last(); !ok || last != "c" {
		t.Errorf("Last() = %q, %v, want %q, true", last, ok, "c")
	}
}

func TestMinimumCapacity(t *testing.T) {
	b := New[int](0)
	b.Append(7)
	if got := b.Cap(); got != 1 {
		t.Errorf("Cap() = %d, want %d", got, 1)
	}
	if last, _ := b.Last(); last != 7 {
		t.Errorf("Last() = %d, want %d", last, 7)
	}
}
