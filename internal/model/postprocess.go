package model

import (
	"cmp"
	"slices"
)

// Postprocess turns a raw output tensor into ranked categories.
//
// Values are dequantized for quantized models, ranked by descending score
// with ties kept in index order, then filtered in a fixed order: deny list,
// allow list, score threshold, and finally truncation to MaxResults.
func (c *Classifier) Postprocess(raw Tensor) []Category {
	n := min(len(raw.Values), len(c.labels))

	scores := make([]float32, n)
	copy(scores, raw.Values[:n])
	if c.output.Quantized() {
		for i := range scores {
			scores[i] = c.output.Quantization.Dequantize(scores[i])
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})

	categories := make([]Category, 0, n)
	for _, idx := range order {
		categories = append(categories, Category{Label: c.labels[idx], Score: scores[idx]})
	}

	if len(c.deny) > 0 {
		categories = slices.DeleteFunc(categories, func(cat Category) bool {
			return c.deny.has(cat.Label)
		})
	}
	if c.allow != nil {
		categories = slices.DeleteFunc(categories, func(cat Category) bool {
			return !c.allow.has(cat.Label)
		})
	}
	if c.opts.ScoreThreshold != 0 {
		categories = slices.DeleteFunc(categories, func(cat Category) bool {
			return cat.Score < c.opts.ScoreThreshold
		})
	}
	if c.opts.MaxResults > 0 && len(categories) > c.opts.MaxResults {
		categories = categories[:c.opts.MaxResults]
	}
	return categories
}
