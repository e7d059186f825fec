package ocr

import (
	"strings"

	"github.com/speak2fill/speak2fill/internal/form"
)

// MinConfidence is the score below which a text box is discarded by
// FilterConfident.
const MinConfidence = 0.5

// extractItems walks any JSON structure and collects text boxes. Handles the
// nested formats seen in the wild: arrays wrapping a "res" dict, and parsing
// result lists keyed "parsing_res_list" carrying "block_content" and
// "block_bbox".
func extractItems(payload any) []form.OCRItem {
	var items []form.OCRItem
	walk(payload, func(node map[string]any) {
		if item, ok := coerceItem(node); ok {
			items = append(items, item)
		}
	})
	return items
}

// findImageDims returns the deepest width/height pair found in the payload,
// or zeros.
func findImageDims(payload any) (width, height int) {
	walk(payload, func(node map[string]any) {
		w, wok := asInt(node["width"])
		h, hok := asInt(node["height"])
		if wok && hok && w > 0 && h > 0 {
			width, height = w, h
		}
	})
	return width, height
}

func walk(node any, visit func(map[string]any)) {
	switch n := node.(type) {
	case map[string]any:
		visit(n)
		for _, v := range n {
			walk(v, visit)
		}
	case []any:
		for _, v := range n {
			walk(v, visit)
		}
	}
}

// coerceItem interprets one JSON object as a text box if it looks like one.
// Accepts several key spellings for the text and bbox.
func coerceItem(node map[string]any) (form.OCRItem, bool) {
	text, ok := firstString(node, "text", "block_content")
	if !ok || text == "" {
		return form.OCRItem{}, false
	}

	bbox, ok := firstBBox(node, "bbox", "block_bbox", "coordinate")
	if !ok {
		if points, pok := firstPoints(node, "points", "poly"); pok {
			bbox, ok = bboxFromPoints(points)
		}
	}
	if !ok {
		return form.OCRItem{}, false
	}

	score := 1.0
	if v, ok := firstFloat(node, "score", "rec_score"); ok {
		score = v
	}
	return form.OCRItem{Text: text, BBox: bbox, Score: score}, true
}

// bboxFromPoints collapses a polygon to its axis-aligned bounds.
func bboxFromPoints(points [][]float64) (form.BBox, bool) {
	if len(points) == 0 {
		return form.BBox{}, false
	}
	minX, minY := points[0][0], points[0][1]
	maxX, maxY := minX, minY
	for _, p := range points {
		if len(p) < 2 {
			return form.BBox{}, false
		}
		if p[0] < minX {
			minX = p[0]
		}
		if p[0] > maxX {
			maxX = p[0]
		}
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}
	return form.BBox{int(minX), int(minY), int(maxX), int(maxY)}, true
}

// FilterConfident drops items below MinConfidence.
func FilterConfident(items []form.OCRItem) []form.OCRItem {
	out := make([]form.OCRItem, 0, len(items))
	for _, item := range items {
		if item.Score >= MinConfidence {
			out = append(out, item)
		}
	}
	return out
}

func firstString(node map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := node[k].(string); ok {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

func firstFloat(node map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := node[k].(float64); ok {
			return f, true
		}
	}
	return 0, false
}

func firstBBox(node map[string]any, keys ...string) (form.BBox, bool) {
	for _, k := range keys {
		raw, ok := node[k].([]any)
		if !ok || len(raw) != 4 {
			continue
		}
		var b form.BBox
		valid := true
		for i, v := range raw {
			n, ok := asInt(v)
			if !ok {
				valid = false
				break
			}
			b[i] = n
		}
		if valid {
			return b, true
		}
	}
	return form.BBox{}, false
}

func firstPoints(node map[string]any, keys ...string) ([][]float64, bool) {
	for _, k := range keys {
		raw, ok := node[k].([]any)
		if !ok {
			continue
		}
		points := make([][]float64, 0, len(raw))
		valid := len(raw) > 0
		for _, pv := range raw {
			pair, ok := pv.([]any)
			if !ok || len(pair) < 2 {
				valid = false
				break
			}
			x, xok := pair[0].(float64)
			y, yok := pair[1].(float64)
			if !xok || !yok {
				valid = false
				break
			}
			points = append(points, []float64{x, y})
		}
		if valid {
			return points, true
		}
	}
	return nil, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
