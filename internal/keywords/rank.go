package keywords

import "sort"

// Count is a keyword with its number of occurrences.
type Count struct {
	Keyword string
	Count   int
}

// Counter is a frequency map that remembers the order in which keys were
// first added.
type Counter struct {
	order  []string
	counts map[string]int
}

// NewCounter returns a Counter seeded with tokens.
func NewCounter(tokens ...string) *Counter {
	c := &Counter{counts: make(map[string]int)}
	c.Add(tokens...)
	return c
}

// Add counts each token once.
func (c *Counter) Add(tokens ...string) {
	for _, tok := range tokens {
		if _, ok := c.counts[tok]; !ok {
			c.order = append(c.order, tok)
		}
		c.counts[tok]++
	}
}

// Len returns the number of distinct keys.
func (c *Counter) Len() int {
	return len(c.order)
}

// TopK returns up to k keys by descending count. Equal counts keep first
// occurrence order. k <= 0 returns every key.
func (c *Counter) TopK(k int) []Count {
	out := make([]Count, len(c.order))
	for i, key := range c.order {
		out[i] = Count{Keyword: key, Count: c.counts[key]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// TopK ranks a token stream. See Counter.TopK.
func TopK(tokens []string, k int) []Count {
	return NewCounter(tokens...).TopK(k)
}
