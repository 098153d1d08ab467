// Package similarity ranks existing entities against a candidate name so
// likely duplicates can be surfaced before a new entity is created.
//
// The scorer is advisory only: callers present the matches and a human
// decides whether to reuse an existing entity. Nothing is auto-merged.
package similarity

import (
	"sort"
	"strings"

	"github.com/mharlow/annex/internal/models"
)

// Score weights. All applicable rules stack.
const (
	scoreExactName     = 100
	scoreSubstringName = 75
	scoreAliasMatch    = 50
	scoreSameType      = 25
)

// MaxMatches caps how many candidates are returned.
const MaxMatches = 3

// Match pairs an existing entity with its similarity score against the
// candidate.
type Match struct {
	Entity models.Entity `json:"entity"`
	Score  int           `json:"score"`
}

// Score ranks existing entities against a candidate name and type. Results
// are sorted by descending score, ties broken by original entity order,
// truncated to the top MaxMatches with score > 0.
func Score(candidateName string, candidateType models.EntityType, existing []models.Entity) []Match {
	name := strings.ToLower(strings.TrimSpace(candidateName))
	if name == "" {
		return nil
	}

	var matches []Match
	for _, e := range existing {
		s := scoreOne(name, candidateType, e)
		if s > 0 {
			matches = append(matches, Match{Entity: e, Score: s})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > MaxMatches {
		matches = matches[:MaxMatches]
	}
	return matches
}

func scoreOne(name string, candidateType models.EntityType, e models.Entity) int {
	score := 0
	existingName := strings.ToLower(e.Name)

	if existingName == name {
		score += scoreExactName
	} else if strings.Contains(existingName, name) || strings.Contains(name, existingName) {
		score += scoreSubstringName
	}

	for _, alias := range e.Aliases {
		a := strings.ToLower(alias)
		if a == name || strings.Contains(a, name) || strings.Contains(name, a) {
			score += scoreAliasMatch
			break
		}
	}

	if e.Type == candidateType {
		score += scoreSameType
	}
	return score
}
