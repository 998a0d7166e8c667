package graph

import (
	"fmt"
	"sort"
)

// maxIndividualBranchDepth bounds how far individual branches may diverge
// before they must reconverge on a common node.
const maxIndividualBranchDepth = 8

// Validate checks graph integrity. Violations are fatal at content load so a
// broken graph is never servable; nothing here runs per-request.
func (g *Graph) Validate() error {
	if g.QuestID == "" {
		return fmt.Errorf("quest id is required")
	}
	if len(g.Nodes) == 0 {
		return fmt.Errorf("quest %s: graph has no nodes", g.QuestID)
	}
	if _, ok := g.Nodes[g.EntryNodeID]; !ok {
		return fmt.Errorf("quest %s: entry node %q does not exist", g.QuestID, g.EntryNodeID)
	}

	for _, id := range g.nodeOrder {
		node := g.Nodes[id]
		if err := g.validateNode(node); err != nil {
			return fmt.Errorf("quest %s: node %s: %w", g.QuestID, id, err)
		}
	}
	return nil
}

func (g *Graph) validateNode(node Node) error {
	switch node.Interaction {
	case InteractionVote, InteractionIndividual, InteractionSequentialBroadcast:
		if len(node.Choices) == 0 && !node.Terminal {
			return fmt.Errorf("interaction %s requires choices", InteractionLabel(node.Interaction))
		}
	case InteractionSync:
		if node.NextNodeID == "" && !node.Terminal {
			return fmt.Errorf("sync node requires next_node")
		}
		if node.NextNodeID != "" {
			if _, ok := g.Nodes[node.NextNodeID]; !ok {
				return fmt.Errorf("next node %q does not exist", node.NextNodeID)
			}
		}
	case InteractionContribute:
		if node.Score == nil {
			return fmt.Errorf("contribute node requires a score spec")
		}
		if node.Score.Target <= 0 {
			return fmt.Errorf("contribute target must be positive")
		}
		if node.Score.TurnBudget <= 0 {
			return fmt.Errorf("contribute turn budget must be positive")
		}
		for _, next := range []string{node.Score.SuccessNodeID, node.Score.FailureNodeID} {
			if next == "" {
				return fmt.Errorf("contribute node requires success and failure exits")
			}
			if _, ok := g.Nodes[next]; !ok {
				return fmt.Errorf("next node %q does not exist", next)
			}
		}
	default:
		return fmt.Errorf("unknown interaction type")
	}

	seen := make(map[string]struct{}, len(node.Choices))
	for _, choice := range node.Choices {
		if choice.ID == "" {
			return fmt.Errorf("choice id is required")
		}
		if _, dup := seen[choice.ID]; dup {
			return fmt.Errorf("duplicate choice id %q", choice.ID)
		}
		seen[choice.ID] = struct{}{}

		if choice.NextNodeID != "" {
			if _, ok := g.Nodes[choice.NextNodeID]; !ok {
				return fmt.Errorf("choice %s: next node %q does not exist", choice.ID, choice.NextNodeID)
			}
		}
		if err := g.validateAction(choice.Action); err != nil {
			return fmt.Errorf("choice %s: %w", choice.ID, err)
		}
	}

	if node.Interaction == InteractionIndividual && !node.Terminal {
		if err := g.validateReconvergence(node); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) validateAction(action *Action) error {
	if action == nil {
		return nil
	}
	switch action.Kind {
	case ActionNone, ActionFinishQuest:
		return nil
	case ActionStartSubQuest:
		if action.QuestID == "" {
			return fmt.Errorf("start_sub_quest requires a quest id")
		}
		return nil
	case ActionStartCoopBattle:
		if action.EncounterID == "" {
			return fmt.Errorf("start_coop_battle requires an encounter id")
		}
		if _, ok := g.Encounters[action.EncounterID]; !ok {
			return fmt.Errorf("encounter %q does not exist", action.EncounterID)
		}
		for _, next := range []string{action.VictoryNodeID, action.DefeatNodeID} {
			if next == "" {
				return fmt.Errorf("start_coop_battle requires victory and defeat nodes")
			}
			if _, ok := g.Nodes[next]; !ok {
				return fmt.Errorf("next node %q does not exist", next)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown action kind")
	}
}

// validateReconvergence checks that every branch out of an individual node
// reaches a single common node within maxIndividualBranchDepth steps. Without
// this guarantee a room could hold divergent per-player positions forever.
func (g *Graph) validateReconvergence(node Node) error {
	if len(node.Choices) < 2 {
		return nil
	}

	reachable := make([]map[string]int, 0, len(node.Choices))
	for _, choice := range node.Choices {
		if choice.NextNodeID == "" {
			return fmt.Errorf("individual choice %s requires next_node", choice.ID)
		}
		reachable = append(reachable, g.reachableWithin(choice.NextNodeID, maxIndividualBranchDepth))
	}

	var common []string
	for id := range reachable[0] {
		inAll := true
		for _, r := range reachable[1:] {
			if _, ok := r[id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			common = append(common, id)
		}
	}
	if len(common) == 0 {
		return fmt.Errorf("individual branches do not reconverge within %d steps", maxIndividualBranchDepth)
	}
	sort.Strings(common)
	return nil
}

// reachableWithin returns nodes reachable from start within depth steps,
// mapped to their shortest distance.
func (g *Graph) reachableWithin(start string, depth int) map[string]int {
	dist := map[string]int{start: 0}
	frontier := []string{start}
	for step := 0; step < depth && len(frontier) > 0; step++ {
		var next []string
		for _, id := range frontier {
			node, ok := g.Nodes[id]
			if !ok {
				continue
			}
			for _, out := range g.outgoing(node) {
				if _, seen := dist[out]; !seen {
					dist[out] = step + 1
					next = append(next, out)
				}
			}
		}
		frontier = next
	}
	return dist
}

func (g *Graph) outgoing(node Node) []string {
	var out []string
	if node.NextNodeID != "" {
		out = append(out, node.NextNodeID)
	}
	if node.Score != nil {
		out = append(out, node.Score.SuccessNodeID, node.Score.FailureNodeID)
	}
	for _, choice := range node.Choices {
		if choice.NextNodeID != "" {
			out = append(out, choice.NextNodeID)
		}
		if choice.Action != nil && choice.Action.Kind == ActionStartCoopBattle {
			out = append(out, choice.Action.VictoryNodeID, choice.Action.DefeatNodeID)
		}
	}
	return out
}
