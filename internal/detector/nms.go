package detector

import "sort"

// Rank returns faces ordered by descending score. Equal scores keep their
// input order, so the first face is stable across runs. faces is not
// modified.
func Rank(faces []Face) []Face {
	ranked := make([]Face, len(faces))
	copy(ranked, faces)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// NMS drops every face that overlaps a higher ranked one by more than
// iouThreshold. The survivors come back in Rank order.
func NMS(faces []Face, iouThreshold float32) []Face {
	kept := make([]Face, 0, len(faces))
	for _, face := range Rank(faces) {
		if !overlapsAny(face.BoundingBox, kept, iouThreshold) {
			kept = append(kept, face)
		}
	}
	return kept
}

func overlapsAny(b BoundingBox, kept []Face, iouThreshold float32) bool {
	for _, k := range kept {
		if b.IoU(k.BoundingBox) > iouThreshold {
			return true
		}
	}
	return false
}

// IoU returns the intersection over union of two boxes
func (b BoundingBox) IoU(o BoundingBox) float32 {
	x1, y1 := max(b.X1, o.X1), max(b.Y1, o.Y1)
	x2, y2 := min(b.X2, o.X2), min(b.Y2, o.Y2)
	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
