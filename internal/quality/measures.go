package quality

import "image"

// LaplacianVariance is the variance of the 4-neighbour Laplacian response over the
// interior of a grayscale grid indexed [x][y]. Grids smaller than 3x3 score 0.
func LaplacianVariance(gray [][]float64) float64 {
	w := len(gray)
	if w < 3 {
		return 0
	}
	h := len(gray[0])
	if h < 3 {
		return 0
	}

	var sum, sumSq float64
	n := 0
	for x := 1; x < w-1; x++ {
		for y := 1; y < h-1; y++ {
			v := gray[x-1][y] + gray[x+1][y] + gray[x][y-1] + gray[x][y+1] - 4*gray[x][y]
			sum += v
			sumSq += v * v
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// MeanIntensity is the mean 8-bit channel value (R, G and B together) over region.
func MeanIntensity(img image.Image, region image.Rectangle) float64 {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return 0
	}
	var sum float64
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			sum += float64(r>>8) + float64(g>>8) + float64(b>>8)
		}
	}
	return sum / float64(3*region.Dx()*region.Dy())
}
