package payroll

import "sort"

// resolveOrder checks parent links and returns indexes into rules in
// execution order. Cycles are reported before sequence violations, since a
// cycle always violates the sequence rule as well.
func resolveOrder(rules []SalaryRule, positions map[string]int) ([]int, error) {
	parent := make([]int, len(rules))
	for i, r := range rules {
		parent[i] = -1
		if r.ParentCode == "" {
			continue
		}
		p, ok := positions[r.ParentCode]
		if !ok {
			return nil, &UnknownRuleError{Code: r.ParentCode, Referrer: r.Code}
		}
		parent[i] = p
	}

	if chain := findCycle(len(rules), func(i int) int { return parent[i] }); chain != nil {
		codes := make([]string, len(chain))
		for i, idx := range chain {
			codes[i] = rules[idx].Code
		}
		return nil, &RuleCycleError{Kind: CycleKindRule, Chain: codes}
	}

	for i, r := range rules {
		if parent[i] < 0 {
			continue
		}
		p := rules[parent[i]]
		if p.Sequence >= r.Sequence {
			return nil, &RuleOrderingError{
				RuleCode:       r.Code,
				Sequence:       r.Sequence,
				ParentCode:     p.Code,
				ParentSequence: p.Sequence,
			}
		}
	}

	order := make([]int, len(rules))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rules[order[a]].Sequence < rules[order[b]].Sequence
	})
	return order, nil
}

// findCycle walks single-parent links and returns the first cycle found as
// a closed chain (first node repeated at the end), or nil.
func findCycle(n int, parentOf func(int) int) []int {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]int, n)
	for start := 0; start < n; start++ {
		if state[start] != unvisited {
			continue
		}
		var path []int
		node := start
		for node >= 0 && state[node] == unvisited {
			state[node] = onPath
			path = append(path, node)
			node = parentOf(node)
		}
		if node >= 0 && state[node] == onPath {
			for i, idx := range path {
				if idx == node {
					return append(append([]int(nil), path[i:]...), node)
				}
			}
		}
		for _, idx := range path {
			state[idx] = done
		}
	}
	return nil
}
