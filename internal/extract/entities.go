package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const entitySystemPrompt = `The information in a text is expressed by mentions of concepts such as assertions, facts, individuals, objects, events, tasks, activities, and more. We call these concepts "entities".
You identify all the "entities" in the text, and for each one, you provide both:
 - a brief description of that entity (max 1 sentence);
 - a list of types, i.e. a term (or compound term) to define a category or hyperonym for that entity.
The output you provide is the list of entities, descriptions, and types, formatted with an initial hyphen this way:
` + "`- <entity>|||<description>|||[<type 1>, <type 2>, ...]`" + `
The user text language may be anything, but your output should be %s!
`

// - <label>|||<description>|||[<type>, <type>, ...]
var entityGrammar = Grammar[Entity]{
	Name:    "entity",
	Pattern: regexp.MustCompile(`^- ?([^|]+)\|{3}([^|]+)\|{3} ?\[((?:[^,]+, ?)*[^,]+)\]$`),
	Parse: func(sub []string) (Entity, bool) {
		parts := strings.Split(sub[3], ",")
		types := make([]string, 0, len(parts))
		for _, t := range parts {
			types = append(types, strings.TrimSpace(t))
		}
		return Entity{
			Label:       strings.TrimSpace(sub[1]),
			Description: strings.TrimSpace(sub[2]),
			Types:       types,
		}, true
	},
}

// extractEntities asks the model for every entity in text. Entities keep
// the answer order; duplicates are not merged.
func (r *runner) extractEntities(ctx context.Context, text, language string) ([]Entity, error) {
	answer, err := r.complete(ctx, StageEntityExtraction, fmt.Sprintf(entitySystemPrompt, language), text)
	if err != nil {
		return nil, err
	}

	d := Decode(answer, entityGrammar)
	reportMalformed(ctx, r, StageEntityExtraction, d)
	return d.Records, nil
}
