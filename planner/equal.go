package planner

import (
	"encoding/binary"

	"mit.edu/dsg/flowdb/common"
)

type nodePair struct {
	a, b *PlanNode
}

// Equal reports whether two plans are structurally equal: same tags, same plain parameters, the same
// capability boxes and pairwise equal inputs. Node identities are ignored. Shared subplans are compared once.
func Equal(a, b *PlanNode) bool {
	return equal(a, b, make(map[nodePair]bool))
}

func equal(a, b *PlanNode, seen map[nodePair]bool) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	key := nodePair{a, b}
	if r, ok := seen[key]; ok {
		return r
	}
	r := shallowEqual(a, b)
	for i := 0; r && i < len(a.inputs); i++ {
		r = equal(a.inputs[i], b.inputs[i], seen)
	}
	seen[key] = r
	return r
}

func shallowEqual(a, b *PlanNode) bool {
	if a.tag != b.tag || len(a.params) != len(b.params) || len(a.capabilities) != len(b.capabilities) ||
		len(a.inputs) != len(b.inputs) {
		return false
	}
	for k, v := range a.params {
		if w, ok := b.params[k]; !ok || v != w {
			return false
		}
	}
	for k, v := range a.capabilities {
		if w, ok := b.capabilities[k]; !ok || v != w {
			return false
		}
	}
	return true
}

// Fingerprint returns a hash of the plan structure that is consistent with Equal: equal plans have equal
// fingerprints.
func Fingerprint(root *PlanNode) uint64 {
	memo := make(map[*PlanNode]uint64)
	var visit func(n *PlanNode) uint64
	visit = func(n *PlanNode) uint64 {
		if h, ok := memo[n]; ok {
			return h
		}
		buf := append([]byte(nil), n.tag...)
		for _, name := range n.ParamNames() {
			p := n.params[name]
			buf = append(buf, 0)
			buf = append(buf, name...)
			buf = append(buf, 0, byte(p.kind), byte(p.t))
			buf = binary.LittleEndian.AppendUint64(buf, uint64(p.i))
			buf = append(buf, p.s...)
		}
		for _, name := range n.CapabilityNames() {
			buf = append(buf, 1)
			buf = append(buf, name...)
			buf = binary.LittleEndian.AppendUint64(buf, n.capabilities[name].id)
		}
		h := common.Hash(buf)
		for _, in := range n.inputs {
			h = common.HashCombine(h, visit(in))
		}
		memo[n] = h
		return h
	}
	return visit(root)
}
