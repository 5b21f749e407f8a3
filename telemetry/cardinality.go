package telemetry

import "sync"

// overflowValue replaces label values once a label reaches its limit.
const overflowValue = "other"

// defaultLabelLimits caps labels that carry identifiers.
var defaultLabelLimits = map[string]int{
	"pattern_id":      200,
	"conversation_id": 200,
	"task_type":       20,
	"error_type":      50,
}

// CardinalityLimiter bounds the distinct values recorded per metric label.
// Values seen before the limit was reached keep passing through.
type CardinalityLimiter struct {
	limits map[string]int

	mu   sync.Mutex
	seen map[string]map[string]struct{} // "metric.label" -> values
}

// NewCardinalityLimiter creates a limiter. Labels without a limit are unbounded.
func NewCardinalityLimiter(limits map[string]int) *CardinalityLimiter {
	return &CardinalityLimiter{
		limits: limits,
		seen:   make(map[string]map[string]struct{}),
	}
}

// CheckAndLimit returns value, or "other" when the label is over its limit.
func (c *CardinalityLimiter) CheckAndLimit(metric, label, value string) string {
	limit, ok := c.limits[label]
	if !ok {
		return value
	}

	key := metric + "." + label
	c.mu.Lock()
	defer c.mu.Unlock()

	values := c.seen[key]
	if values == nil {
		values = make(map[string]struct{})
		c.seen[key] = values
	}
	if _, known := values[value]; known {
		return value
	}
	if len(values) >= limit {
		return overflowValue
	}
	values[value] = struct{}{}
	return value
}

// CurrentCardinality returns the number of tracked values across all labels.
func (c *CardinalityLimiter) CurrentCardinality() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, values := range c.seen {
		total += len(values)
	}
	return total
}

// Reset forgets every tracked value.
func (c *CardinalityLimiter) Reset() {
	c.mu.Lock()
	c.seen = make(map[string]map[string]struct{})
	c.mu.Unlock()
}
