package facematch

import (
	"image"
	"math"
	"sort"
)

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	// Calculate intersection.
	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// SuppressOverlaps keeps the most confident box of every group of boxes whose IoU exceeds
// iouThreshold. It returns the indices of the kept boxes, most confident first.
func SuppressOverlaps(bboxes [][]float64, scores []float64, iouThreshold float64) []int {
	order := make([]int, len(bboxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	var kept []int
	for _, i := range order {
		overlaps := false
		for _, k := range kept {
			if ComputeIoU(bboxes[i], bboxes[k]) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, i)
		}
	}
	return kept
}

// PixelBBoxToRect converts a pixel bbox [x1, y1, x2, y2] to an integer rectangle clipped to bounds.
// Returns an empty rectangle for malformed input.
func PixelBBoxToRect(bbox []float64, bounds image.Rectangle) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	r := image.Rect(
		int(math.Floor(bbox[0])),
		int(math.Floor(bbox[1])),
		int(math.Ceil(bbox[2])),
		int(math.Ceil(bbox[3])),
	)
	return r.Intersect(bounds)
}

// ExpandRect grows r by margin (relative to its width and height) on every side,
// clipped to bounds.
func ExpandRect(r image.Rectangle, margin float64, bounds image.Rectangle) image.Rectangle {
	mx := int(float64(r.Dx()) * margin)
	my := int(float64(r.Dy()) * margin)
	return image.Rect(r.Min.X-mx, r.Min.Y-my, r.Max.X+mx, r.Max.Y+my).Intersect(bounds)
}
