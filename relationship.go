package mongoferry

// StrategyChooser selects a handling strategy for one foreign-key edge.
// It is supplied by the driving layer (or a test harness) and typically
// wraps operator input.
type StrategyChooser func(ForeignKey) Strategy

// ClassifyRelationships assigns a strategy to every discovered foreign-key
// edge. A nil chooser assigns StrategyEmbed to each edge, the default
// offered to operators.
//
// Assignments are advisory metadata: this engine performs single-table
// scans only and no strategy alters the write path. The tags exist so a
// future nesting pass has the operator's intent recorded.
func ClassifyRelationships(edges []ForeignKey, choose StrategyChooser) []RelationshipAssignment {
	if len(edges) == 0 {
		return nil
	}
	assignments := make([]RelationshipAssignment, 0, len(edges))
	for _, e := range edges {
		s := StrategyEmbed
		if choose != nil {
			s = choose(e)
		}
		assignments = append(assignments, RelationshipAssignment{Edge: e, Strategy: s})
	}
	return assignments
}
