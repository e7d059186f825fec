// Package geometry maps rectangles between pixel spaces. Renderers draw the
// original form at arbitrary sizes; every overlay goes through Map so the
// highlighted region lands where the bbox says it should.
package geometry

// Rect is an axis-aligned rectangle [x1,y1,x2,y2].
type Rect [4]float64

// Map scales r from a source space of srcW×srcH into a destination space of
// dstW×dstH. Each axis scales independently; aspect distortion is the
// caller's concern. Map is stateless and trusts its inputs — callers must
// pass the image dimensions recorded at session creation.
func Map(r Rect, srcW, srcH, dstW, dstH float64) Rect {
	sx := dstW / srcW
	sy := dstH / srcH
	return Rect{r[0] * sx, r[1] * sy, r[2] * sx, r[3] * sy}
}

// FromInts converts an integer pixel bbox to a Rect.
func FromInts(b [4]int) Rect {
	return Rect{float64(b[0]), float64(b[1]), float64(b[2]), float64(b[3])}
}
