package geometry

import (
	"errors"
	"testing"
)

func TestNewRejectsZeroExtent(t *testing.T) {
	cases := []struct{ w, h int }{{0, 1080}, {1920, 0}, {-1, 10}}
	for _, c := range cases {
		if _, err := New(c.w, c.h, 0, 0, "bad"); !errors.Is(err, ErrInvalidGeometry) {
			t.Errorf("New(%d, %d) error = %v, want ErrInvalidGeometry", c.w, c.h, err)
		}
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected MustNew to panic on a zero-size screen")
		}
	}()
	MustNew(0, 0, 0, 0, "bad")
}

func TestMapPointPanicsOnZeroScreen(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected MapPoint to panic on a zero-size screen")
		}
	}()
	MapPoint(Point{1, 1}, Screen{}, MustNew(10, 10, 0, 0, "to"))
}

func TestIsInside(t *testing.T) {
	s := MustNew(100, 50, 10, 20, "s")
	tests := []struct {
		p    Point
		want bool
	}{
		{Point{10, 20}, true},
		{Point{109, 69}, true},
		{Point{110, 30}, false},
		{Point{50, 70}, false},
		{Point{9, 30}, false},
	}
	for _, tt := range tests {
		if got := IsInside(tt.p, s); got != tt.want {
			t.Errorf("IsInside(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	s := MustNew(1920, 1080, 0, 0, "s")
	tests := []struct {
		in, want Point
	}{
		{Point{-5, -5}, Point{0, 0}},
		{Point{1920, 1080}, Point{1919, 1079}},
		{Point{500, 600}, Point{500, 600}},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in, s); got != tt.want {
			t.Errorf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMapPointProportional(t *testing.T) {
	a := MustNew(1920, 1080, 0, 0, "a")
	b := MustNew(1024, 768, 0, 0, "b")

	got := MapPoint(Point{960, 270}, a, b)
	if got != (Point{512, 192}) {
		t.Errorf("MapPoint = %v, want {512 192}", got)
	}

	offset := MustNew(1000, 1000, 100, 200, "offset")
	got = MapPoint(Point{600, 700}, offset, MustNew(100, 100, 0, 0, "small"))
	if got != (Point{50, 50}) {
		t.Errorf("MapPoint with origin = %v, want {50 50}", got)
	}
}

func TestMapPointRoundTrip(t *testing.T) {
	screens := []Screen{
		MustNew(1920, 1080, 0, 0, "fhd"),
		MustNew(1280, 800, 0, 0, "wxga"),
		MustNew(1024, 768, 0, 0, "xga"),
		MustNew(2560, 1440, -2560, 0, "qhd-left"),
		MustNew(3840, 2160, 0, -2160, "uhd-top"),
	}

	for _, from := range screens {
		for _, to := range screens {
			// Going through a coarser screen loses up to one of its pixels,
			// which is this many source pixels.
			tolX := ceilDiv(from.Width(), to.Width())
			tolY := ceilDiv(from.Height(), to.Height())

			for x := from.OriginX(); x < from.OriginX()+from.Width(); x += 37 {
				for y := from.OriginY(); y < from.OriginY()+from.Height(); y += 41 {
					p := Point{x, y}
					back := MapPoint(MapPoint(p, from, to), to, from)
					if abs(back.X-p.X) > tolX || abs(back.Y-p.Y) > tolY {
						t.Fatalf("%s -> %s -> %s: %v came back as %v", from, to, from, p, back)
					}
					if to.Width() >= from.Width() && to.Height() >= from.Height() {
						if abs(back.X-p.X) > 1 || abs(back.Y-p.Y) > 1 {
							t.Fatalf("upscale round trip %v -> %v drifted more than one pixel", p, back)
						}
					}
				}
			}
		}
	}
}

func ceilDiv(a, b int) int {
	if a <= b {
		return 1
	}
	return (a + b - 1) / b
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
