package planner

import (
	"github.com/puzpuzpuz/xsync/v3"
)

type cacheEntry[V any] struct {
	root  *PlanNode
	value V
}

// PlanCache maps structurally equal plans to a shared value, typically a compiled pipeline. Lookups hash the
// plan with Fingerprint and confirm hits with Equal, so plans that collide on the hash do not alias.
//
// PlanCache is safe for concurrent use.
type PlanCache[V any] struct {
	buckets *xsync.MapOf[uint64, []cacheEntry[V]]
}

func NewPlanCache[V any]() *PlanCache[V] {
	return &PlanCache[V]{buckets: xsync.NewMapOf[uint64, []cacheEntry[V]]()}
}

// Get returns the value stored for a plan equal to root.
func (c *PlanCache[V]) Get(root *PlanNode) (V, bool) {
	var zero V
	bucket, ok := c.buckets.Load(Fingerprint(root))
	if !ok {
		return zero, false
	}
	for _, e := range bucket {
		if Equal(e.root, root) {
			return e.value, true
		}
	}
	return zero, false
}

// GetOrCompute returns the value stored for a plan equal to root, or calls compute and stores its result. If
// compute fails nothing is stored. compute may run more than once for the same plan under contention; only one
// result is kept.
func (c *PlanCache[V]) GetOrCompute(root *PlanNode, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(root); ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return v, err
	}
	var result V
	c.buckets.Compute(Fingerprint(root), func(bucket []cacheEntry[V], loaded bool) ([]cacheEntry[V], bool) {
		for _, e := range bucket {
			if Equal(e.root, root) {
				result = e.value
				return bucket, false
			}
		}
		result = v
		return append(bucket[:len(bucket):len(bucket)], cacheEntry[V]{root: root, value: v}), false
	})
	return result, nil
}

// Len returns the number of cached plans.
func (c *PlanCache[V]) Len() int {
	n := 0
	c.buckets.Range(func(_ uint64, bucket []cacheEntry[V]) bool {
		n += len(bucket)
		return true
	})
	return n
}

// Clear drops every cached plan.
func (c *PlanCache[V]) Clear() {
	c.buckets.Clear()
}
