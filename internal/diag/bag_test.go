package diag

import "testing"

func TestBag_CapacityLimitsAdds(t *testing.T) {
	b := NewBag(2)
	if !b.Errorf(Location{Function: "f"}, CodeNoMainFunction, "first") {
		t.Fatal("expected first Add to succeed")
	}
	if !b.Warnf(Location{Function: "f"}, CodeUnknownOffset, "second") {
		t.Fatal("expected second Add to succeed")
	}
	if b.Errorf(Location{Function: "f"}, CodeNoMainFunction, "third") {
		t.Fatal("expected third Add to be dropped at capacity")
	}
	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
}

func TestBag_HasErrorsAndWarnings(t *testing.T) {
	b := NewBag(10)
	if b.HasErrors() || b.HasWarnings() {
		t.Fatal("empty bag should have neither")
	}
	b.Warnf(Location{}, CodeUnknownOffset, "warn")
	if b.HasErrors() {
		t.Fatal("should not have errors yet")
	}
	if !b.HasWarnings() {
		t.Fatal("should have a warning")
	}
	b.Errorf(Location{}, CodeNoMainFunction, "boom")
	if !b.HasErrors() {
		t.Fatal("should have an error")
	}
}

func TestBag_SortOrdersByFunctionThenSeverity(t *testing.T) {
	b := NewBag(10)
	b.Warnf(Location{Function: "b"}, CodeUnknownOffset, "w")
	b.Errorf(Location{Function: "a"}, CodeNoMainFunction, "e")
	b.Infof(Location{Function: "a"}, CodeTraceNodeCreated, "i")
	b.Sort()

	items := b.Items()
	if items[0].At.Function != "a" || items[0].Severity != SevError {
		t.Errorf("items[0] = %+v, want function a, SevError first", items[0])
	}
	if items[1].At.Function != "a" || items[1].Severity != SevInfo {
		t.Errorf("items[1] = %+v, want function a, SevInfo", items[1])
	}
	if items[2].At.Function != "b" {
		t.Errorf("items[2] = %+v, want function b", items[2])
	}
}
