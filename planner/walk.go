package planner

// Walk visits every node reachable from root exactly once, inputs before consumers. Inputs are visited in
// order. If fn returns an error the walk stops and returns it.
func Walk(root *PlanNode, fn func(n *PlanNode) error) error {
	visited := make(map[*PlanNode]struct{})
	var visit func(n *PlanNode) error
	visit = func(n *PlanNode) error {
		if _, ok := visited[n]; ok {
			return nil
		}
		visited[n] = struct{}{}
		for _, in := range n.inputs {
			if err := visit(in); err != nil {
				return err
			}
		}
		return fn(n)
	}
	return visit(root)
}

// Nodes returns the distinct nodes reachable from root in the order Walk visits them.
func Nodes(root *PlanNode) []*PlanNode {
	var out []*PlanNode
	_ = Walk(root, func(n *PlanNode) error {
		out = append(out, n)
		return nil
	})
	return out
}
