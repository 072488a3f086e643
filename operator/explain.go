package operator

import (
	"fmt"
	"strings"

	"mit.edu/dsg/flowdb/planner"
)

// Explain renders the plan rooted at root as an indented tree, one node per line, using each kind's Print hook.
// A node shared by several parents is printed in full once, labelled "#k", and referenced as "-> #k" after that.
func Explain(r *Registry, root *planner.PlanNode) string {
	uses := make(map[*planner.PlanNode]int)
	_ = planner.Walk(root, func(n *planner.PlanNode) error {
		for i := 0; i < n.NumInputs(); i++ {
			uses[n.Input(i)]++
		}
		return nil
	})

	labels := make(map[*planner.PlanNode]int)
	var sb strings.Builder
	var visit func(n *planner.PlanNode, depth int)
	visit = func(n *planner.PlanNode, depth int) {
		indent := strings.Repeat("  ", depth)
		if label, ok := labels[n]; ok {
			fmt.Fprintf(&sb, "%s-> #%d\n", indent, label)
			return
		}
		sb.WriteString(indent)
		sb.WriteString(r.Print(n))
		if uses[n] > 1 {
			labels[n] = len(labels) + 1
			fmt.Fprintf(&sb, " #%d", labels[n])
		}
		sb.WriteString("\n")
		for i := 0; i < n.NumInputs(); i++ {
			visit(n.Input(i), depth+1)
		}
	}
	visit(root, 0)
	return sb.String()
}
