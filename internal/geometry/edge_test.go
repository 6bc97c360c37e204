package geometry

import "testing"

func TestDetectEdge(t *testing.T) {
	s := MustNew(1920, 1080, 0, 0, "s")
	tests := []struct {
		p    Point
		want Edge
	}{
		{Point{1919, 540}, EdgeRight},
		{Point{1915, 540}, EdgeRight},
		{Point{1914, 540}, EdgeNone},
		{Point{0, 540}, EdgeLeft},
		{Point{5, 540}, EdgeLeft},
		{Point{960, 3}, EdgeTop},
		{Point{960, 1079}, EdgeBottom},
		{Point{960, 540}, EdgeNone},
		{Point{1919, 0}, EdgeRight},
	}
	for _, tt := range tests {
		if got := DetectEdge(tt.p, s, 5); got != tt.want {
			t.Errorf("DetectEdge(%v) = %s, want %s", tt.p, got, tt.want)
		}
	}
}

func TestDetectEdgeWithOrigin(t *testing.T) {
	s := MustNew(1280, 800, 1920, 0, "right-of-primary")
	if got := DetectEdge(Point{1921, 400}, s, 5); got != EdgeLeft {
		t.Errorf("DetectEdge = %s, want left", got)
	}
	if got := DetectEdge(Point{3199, 400}, s, 5); got != EdgeRight {
		t.Errorf("DetectEdge = %s, want right", got)
	}
}

func TestEntryPointRightEdge(t *testing.T) {
	local := MustNew(1920, 1080, 0, 0, "local")
	target := MustNew(1280, 800, 0, 0, "target")

	got := EntryPoint(EdgeRight, Point{1919, 540}, local, target, 10)
	if got != (Point{10, 400}) {
		t.Errorf("EntryPoint = %v, want {10 400}", got)
	}
}

func TestEntryPointAllEdges(t *testing.T) {
	local := MustNew(1920, 1080, 0, 0, "local")
	target := MustNew(1024, 768, 0, 0, "target")

	tests := []struct {
		edge Edge
		p    Point
		want Point
	}{
		{EdgeRight, Point{1919, 270}, Point{10, 192}},
		{EdgeLeft, Point{0, 540}, Point{1013, 384}},
		{EdgeTop, Point{960, 0}, Point{512, 757}},
		{EdgeBottom, Point{480, 1079}, Point{256, 10}},
	}
	for _, tt := range tests {
		if got := EntryPoint(tt.edge, tt.p, local, target, 10); got != tt.want {
			t.Errorf("EntryPoint(%s, %v) = %v, want %v", tt.edge, tt.p, got, tt.want)
		}
	}
}

// TestEntryPointInsetSymmetric keeps the entry the same distance from the
// outermost pixel on every edge, including offset screens
func TestEntryPointInsetSymmetric(t *testing.T) {
	from := MustNew(800, 600, 0, 0, "from")
	to := MustNew(1024, 768, 100, 50, "to")

	right := EntryPoint(EdgeRight, Point{799, 300}, from, to, 10)
	left := EntryPoint(EdgeLeft, Point{0, 300}, from, to, 10)
	bottom := EntryPoint(EdgeBottom, Point{400, 599}, from, to, 10)
	top := EntryPoint(EdgeTop, Point{400, 0}, from, to, 10)

	lastX := to.OriginX() + to.Width() - 1
	lastY := to.OriginY() + to.Height() - 1
	if d := right.X - to.OriginX(); d != 10 {
		t.Errorf("Expected right entry 10px from the first column, got %d", d)
	}
	if d := lastX - left.X; d != 10 {
		t.Errorf("Expected left entry 10px from the last column, got %d", d)
	}
	if d := bottom.Y - to.OriginY(); d != 10 {
		t.Errorf("Expected bottom entry 10px from the first row, got %d", d)
	}
	if d := lastY - top.Y; d != 10 {
		t.Errorf("Expected top entry 10px from the last row, got %d", d)
	}
}

func TestEdgeOppositeAndParse(t *testing.T) {
	for _, e := range []Edge{EdgeLeft, EdgeRight, EdgeTop, EdgeBottom} {
		if e.Opposite().Opposite() != e {
			t.Errorf("Opposite is not symmetric for %s", e)
		}
		if ParseEdge(e.String()) != e {
			t.Errorf("ParseEdge(%q) did not round trip", e.String())
		}
	}
	if ParseEdge("diagonal") != EdgeNone {
		t.Error("Expected unknown edge name to parse as none")
	}
}
