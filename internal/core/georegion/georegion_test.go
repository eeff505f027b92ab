package georegion

import "testing"

func TestClassify_BrisbanePoint(t *testing.T) {
	r, ok := Classify(-27.4698, 153.0251, "")
	if !ok {
		t.Fatalf("central Brisbane point should classify")
	}
	if r.ID != "brisbane" {
		t.Fatalf("region = %q, want brisbane", r.ID)
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	// Springwood sits inside both the brisbane and logan rectangles;
	// declaration order resolves the tie
	r, ok := Classify(-27.61, 153.13, "")
	if !ok {
		t.Fatalf("overlap point should classify")
	}
	if r.ID != "brisbane" {
		t.Fatalf("declaration order should pick brisbane, got %q", r.ID)
	}
}

func TestClassify_TextFallbackSubArea(t *testing.T) {
	r, ok := Classify(0, 0, "near Surfers Paradise Blvd")
	if !ok || r.ID != "gold-coast" {
		t.Fatalf("sub-area fallback mismatch: %+v ok=%v", r, ok)
	}
}

func TestClassify_TextFallbackRegionName(t *testing.T) {
	r, ok := Classify(0, 0, "Sunshine Coast hinterland")
	if !ok || r.ID != "sunshine-coast" {
		t.Fatalf("region-name fallback mismatch: %+v ok=%v", r, ok)
	}
}

func TestClassify_UnknownIsEmpty(t *testing.T) {
	if _, ok := Classify(-10.0, 140.0, "nowhere in particular"); ok {
		t.Fatalf("far-away point should not classify")
	}
}

func TestClassifyIDs(t *testing.T) {
	ids := ClassifyIDs(-27.4698, 153.0251, "")
	if len(ids) != 1 || ids[0] != "brisbane" {
		t.Fatalf("ids = %v, want [brisbane]", ids)
	}
	if ids := ClassifyIDs(0, 0, ""); ids != nil {
		t.Fatalf("unclassified point should yield nil, got %v", ids)
	}
}

func TestKnown(t *testing.T) {
	if !Known("brisbane") {
		t.Fatalf("brisbane should be known")
	}
	if Known("atlantis") {
		t.Fatalf("atlantis should not be known")
	}
}
