package copilot

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jxucoder/flowstudio/internal/blueprint"
)

const (
	maxSentenceCandidates = 5
	minSentenceLen        = 7
	maxSlugLen            = 24
	maxTitleLen           = 60
)

var (
	enumeratedLine   = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s+(.+)$`)
	sentenceBoundary = regexp.MustCompile(`[.\n]`)
	slugSeparator    = regexp.MustCompile(`[^a-z0-9]+`)
)

// DeriveSteps builds a linear step list from prose when the model did not emit
// structured data. It returns nil when no usable candidate is found.
//
// Enumerated lines are preferred; otherwise the first few sentences are used.
// Every step after the first depends on the one before it, so any branching the
// text implied is flattened into a chain.
func DeriveSteps(text string) []blueprint.Step {
	candidates := stepCandidates(text)
	if len(candidates) == 0 {
		return nil
	}

	steps := make([]blueprint.Step, 0, len(candidates))
	for i, c := range candidates {
		step := blueprint.Step{
			ID:           stepID(i, c),
			Title:        blueprint.Truncate(c, maxTitleLen),
			Type:         blueprint.StepAction,
			Summary:      c,
			DependsOnIDs: []string{},
		}
		if i == 0 {
			step.Type = blueprint.StepTrigger
		} else {
			step.DependsOnIDs = []string{steps[i-1].ID}
		}
		steps = append(steps, step)
	}
	return steps
}

func stepCandidates(text string) []string {
	text = normalizeNewlines(text)

	var enumerated []string
	for _, line := range strings.Split(text, "\n") {
		m := enumeratedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if c := strings.TrimSpace(m[1]); c != "" {
			enumerated = append(enumerated, c)
		}
	}
	if len(enumerated) >= 2 {
		return enumerated
	}

	var sentences []string
	for _, s := range sentenceBoundary.Split(text, -1) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) < minSentenceLen {
			continue
		}
		sentences = append(sentences, s)
		if len(sentences) == maxSentenceCandidates {
			break
		}
	}
	return sentences
}

func stepID(i int, content string) string {
	slug := slugSeparator.ReplaceAllString(strings.ToLower(content), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	if slug == "" {
		return fmt.Sprintf("auto_step_%d", i+1)
	}
	return fmt.Sprintf("auto_%d_%s", i+1, slug)
}
