package types

import "sort"

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether the normalized point (px, py) lies inside the box
func (b Box) Contains(px, py float64) bool {
	return px >= b.X && px < b.X+b.W && py >= b.Y && py < b.Y+b.H
}

// Area returns the normalized area of the box
func (b Box) Area() float64 {
	return b.W * b.H
}

// Region is one candidate object proposed by a segmentation backend
type Region struct {
	ID         int     `json:"id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// ProposalResult contains the full set of region proposals for one image
type ProposalResult struct {
	Regions     []Region `json:"regions"`
	Description string   `json:"description"`
}

// SortRegions orders regions top-to-bottom then left-to-right so that
// renumbered ids stay stable for the same image.
func SortRegions(rs []Region) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Box.Y != rs[j].Box.Y {
			return rs[i].Box.Y < rs[j].Box.Y
		}
		if rs[i].Box.X != rs[j].Box.X {
			return rs[i].Box.X < rs[j].Box.X
		}
		return rs[i].Box.Area() > rs[j].Box.Area()
	})
}

// Point is a normalized image coordinate, e.g. a user click
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
