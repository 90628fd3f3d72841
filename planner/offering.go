package planner

import (
	"strings"
	"unicode"

	"github.com/tbxark/salesagent/types"
)

// selectOffering scores every offering by keyword overlap with the priority
// need. Ties, including "no need known", go to the first offering.
func (c *cycle) selectOffering() (types.Offering, bool) {
	offerings := c.cfg.Offerings
	if len(offerings) == 0 {
		return types.Offering{}, false
	}
	need, ok := c.state.Profile.PriorityNeed()
	if !ok {
		return offerings[0], true
	}
	needWords := wordSet(need.Text)
	best, bestScore := 0, -1
	for i, o := range offerings {
		score := overlap(needWords, offeringText(o))
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return offerings[best], true
}

func offeringText(o types.Offering) string {
	parts := []string{o.Name, o.Description}
	parts = append(parts, o.Benefits...)
	parts = append(parts, o.Keywords...)
	return strings.Join(parts, " ")
}

func overlap(needWords map[string]bool, text string) int {
	score := 0
	for w := range wordSet(text) {
		if needWords[w] {
			score++
		}
	}
	return score
}

// wordSet keeps words of at least three letters, which drops most articles
// and prepositions.
func wordSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= 3 {
			out[w] = true
		}
	}
	return out
}
