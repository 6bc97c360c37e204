package geometry

// Edge identifies one side of a screen
type Edge int

const (
	EdgeNone Edge = iota
	EdgeLeft
	EdgeRight
	EdgeTop
	EdgeBottom
)

func (e Edge) String() string {
	switch e {
	case EdgeLeft:
		return "left"
	case EdgeRight:
		return "right"
	case EdgeTop:
		return "top"
	case EdgeBottom:
		return "bottom"
	default:
		return "none"
	}
}

// ParseEdge converts a config name back into an Edge
func ParseEdge(name string) Edge {
	switch name {
	case "left":
		return EdgeLeft
	case "right":
		return EdgeRight
	case "top":
		return EdgeTop
	case "bottom":
		return EdgeBottom
	default:
		return EdgeNone
	}
}

// Opposite returns the edge the pointer enters through after crossing e
func (e Edge) Opposite() Edge {
	switch e {
	case EdgeLeft:
		return EdgeRight
	case EdgeRight:
		return EdgeLeft
	case EdgeTop:
		return EdgeBottom
	case EdgeBottom:
		return EdgeTop
	default:
		return EdgeNone
	}
}

// DetectEdge returns the edge p is touching within threshold pixels.
// Corners resolve right, left, top, bottom in that order.
func DetectEdge(p Point, s Screen, threshold int) Edge {
	x := p.X - s.originX
	y := p.Y - s.originY

	switch {
	case x >= s.width-threshold:
		return EdgeRight
	case x <= threshold:
		return EdgeLeft
	case y <= threshold:
		return EdgeTop
	case y >= s.height-threshold:
		return EdgeBottom
	}
	return EdgeNone
}

// EntryPoint computes where the pointer reappears on "to" after leaving "from"
// through edge. The coordinate orthogonal to the edge is pinned inset pixels
// in from the first or last pixel on the opposite side of "to"; the other one
// is scaled with MapPoint.
func EntryPoint(edge Edge, p Point, from, to Screen, inset int) Point {
	mapped := MapPoint(p, from, to)

	var entry Point
	switch edge {
	case EdgeRight:
		entry = Point{X: to.originX + inset, Y: mapped.Y}
	case EdgeLeft:
		entry = Point{X: to.originX + to.width - 1 - inset, Y: mapped.Y}
	case EdgeTop:
		entry = Point{X: mapped.X, Y: to.originY + to.height - 1 - inset}
	case EdgeBottom:
		entry = Point{X: mapped.X, Y: to.originY + inset}
	default:
		entry = mapped
	}
	return Clamp(entry, to)
}
