package graph

import (
	"fmt"
	"sort"

	"github.com/louisbranch/wayfarer.quest/internal/coop/domain"
	apperrors "github.com/louisbranch/wayfarer.quest/internal/platform/errors"
)

// Player carries the profile facts needed to evaluate choice gating. The
// profile store owns this data; the core only reads it.
type Player struct {
	ID         string
	Role       domain.Role
	Stats      map[string]int
	Attributes map[string]int
	Traits     []string
	Items      []string
}

// CheckRequirements reports whether a player satisfies a choice's gating.
// Failures are typed so clients can render the missing requirement; a failed
// check must reject the vote before it is recorded, never after.
func CheckRequirements(choice Choice, player Player) error {
	if choice.RequiredRole != domain.RoleUnspecified && choice.RequiredRole != player.Role {
		return apperrors.WithMetadata(apperrors.CodeQuestRequirementsNotMet,
			"choice requires a different role",
			map[string]string{"RequiredRole": domain.RoleLabel(choice.RequiredRole)})
	}
	for stat, min := range choice.RequiredStats {
		if player.Stats[stat] < min {
			return apperrors.WithMetadata(apperrors.CodeQuestRequirementsNotMet,
				"choice requires a minimum stat",
				map[string]string{"Stat": stat, "Minimum": fmt.Sprintf("%d", min)})
		}
	}
	for attr, min := range choice.RequiredAttributes {
		if player.Attributes[attr] < min {
			return apperrors.WithMetadata(apperrors.CodeQuestRequirementsNotMet,
				"choice requires a minimum attribute",
				map[string]string{"Attribute": attr, "Minimum": fmt.Sprintf("%d", min)})
		}
	}
	for _, trait := range choice.RequiredTraits {
		if !containsString(player.Traits, trait) {
			return apperrors.WithMetadata(apperrors.CodeQuestRequirementsNotMet,
				"choice requires a trait",
				map[string]string{"Trait": trait})
		}
	}
	if choice.RequiredItem != "" && !containsString(player.Items, choice.RequiredItem) {
		return apperrors.WithMetadata(apperrors.CodeQuestRequirementsNotMet,
			"choice requires an item",
			map[string]string{"Item": choice.RequiredItem})
	}
	return nil
}

// ResolveVote computes the plurality winner among cast votes. Ties break to
// the host's vote when the host voted, otherwise to the choice declared first
// on the node. The result is fully determined by its inputs; resolving the
// same vote set twice yields the same winner.
func ResolveVote(node Node, votes map[string]string, hostID string) (Choice, bool) {
	if len(votes) == 0 {
		return Choice{}, false
	}

	tally := make(map[string]int)
	for _, choiceID := range votes {
		tally[choiceID]++
	}

	best := 0
	for _, count := range tally {
		if count > best {
			best = count
		}
	}
	var leaders []string
	for choiceID, count := range tally {
		if count == best {
			leaders = append(leaders, choiceID)
		}
	}
	sort.Strings(leaders)

	if len(leaders) == 1 {
		choice, ok := node.Choice(leaders[0])
		return choice, ok
	}

	if hostVote, ok := votes[hostID]; ok && containsString(leaders, hostVote) {
		choice, ok := node.Choice(hostVote)
		return choice, ok
	}

	// First-declared choice among the tied leaders.
	for _, choice := range node.Choices {
		if containsString(leaders, choice.ID) {
			return choice, true
		}
	}
	return Choice{}, false
}

// ResolveIndividual maps every player to their own next node once all have
// chosen. There is no aggregation or tie-break; the room stays diverged until
// the branches rejoin at a common node.
func ResolveIndividual(node Node, votes map[string]string, required []string) (map[string]string, bool) {
	for _, id := range required {
		if _, ok := votes[id]; !ok {
			return nil, false
		}
	}
	branches := make(map[string]string, len(votes))
	for playerID, choiceID := range votes {
		choice, ok := node.Choice(choiceID)
		if !ok {
			return nil, false
		}
		branches[playerID] = choice.NextNodeID
	}
	return branches, true
}

// ResolveSync reports whether every required participant confirmed.
func ResolveSync(ready map[string]bool, required []string) bool {
	for _, id := range required {
		if !ready[id] {
			return false
		}
	}
	return true
}

// contributionMultipliers is the (role x tag) table used by contribute
// nodes. Tags missing from a role's row contribute at the neutral rate.
var contributionMultipliers = map[domain.Role]map[string]float64{
	domain.RoleBody: {
		"force":   2.0,
		"insight": 0.5,
		"rapport": 0.5,
	},
	domain.RoleMind: {
		"force":   0.5,
		"insight": 2.0,
		"rapport": 0.5,
	},
	domain.RoleSocial: {
		"force":   0.5,
		"insight": 0.5,
		"rapport": 2.0,
	},
}

// ContributionAmount applies the (role x tag) multiplier and any active
// session modifier to a base contribution. The result is truncated toward
// zero so repeated small contributions cannot round up past the target.
func ContributionAmount(role domain.Role, tag string, base int, modifier float64) int {
	mult := 1.0
	if row, ok := contributionMultipliers[role]; ok {
		if m, ok := row[tag]; ok {
			mult = m
		}
	}
	if modifier <= 0 {
		modifier = 1.0
	}
	return int(float64(base) * mult * modifier)
}

// PassiveReveal is the outcome of one passive check for one player.
type PassiveReveal struct {
	PlayerID string
	Passed   bool
	Text     string
	Flag     string
}

// EvaluatePassive runs every passive check against every player. Reveals are
// private to the passing player; failures surface the check's failure text
// when declared. Passive checks never block node advancement.
func EvaluatePassive(node Node, players []Player) []PassiveReveal {
	var reveals []PassiveReveal
	for _, check := range node.Passive {
		for _, player := range players {
			if check.Role != domain.RoleUnspecified && check.Role != player.Role {
				continue
			}
			passed := player.Attributes[check.Attribute] >= check.Min
			reveal := PassiveReveal{PlayerID: player.ID, Passed: passed}
			if passed {
				reveal.Text = check.Reveal
				reveal.Flag = check.Flag
			} else {
				reveal.Text = check.FailText
			}
			if reveal.Text == "" && reveal.Flag == "" {
				continue
			}
			reveals = append(reveals, reveal)
		}
	}
	return reveals
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
