package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const predicateSystemPrompt = `You provide an extended description of the "predicates" in a set of RDF triplets, which means you give a summary of the type of relation, characteristics, behaviors, or associations that the "predicate" is expressing between the "subject" and "object". The description must be general and reusable, so it must make no explicit references to the "subject" and "object".
The user provides you a sentence from which the triplets are extracted and a list of triplets formatted this way:
` + "`- <subject>|||<predicate>|||<object>`" + `
For each unique predicate, you provide the so said description, formatting your output this way:
` + "`- <predicate>|||<predicate description><new line>`" + `
The user text language may be anything, but your output should be %s!
`

const predicateUserPrompt = "Sentence:\n```\n%s\n```\n\nUser triplets:\n```\n%s\n```\n"

type predicateDescription struct {
	label       string
	description string
}

// - <predicate>|||<description>
var predicateGrammar = Grammar[predicateDescription]{
	Name:    "predicate",
	Pattern: regexp.MustCompile(`^- ?([^|]+)\|{3}([^|]+)$`),
	Parse: func(sub []string) (predicateDescription, bool) {
		return predicateDescription{
			label:       strings.TrimSpace(sub[1]),
			description: strings.TrimSpace(sub[2]),
		}, true
	},
}

// describePredicates asks the model to describe the predicates of triplets
// and returns a copy of triplets with PredDescription set. A triplet whose
// predicate has no associated description gets a nil PredDescription.
// The input slice is not modified.
func (r *runner) describePredicates(ctx context.Context, sentence string, triplets []Triplet, language string) ([]Triplet, error) {
	lines := make([]string, len(triplets))
	for i, t := range triplets {
		lines[i] = "- " + t.SubjLabel + "|||" + t.PredLabel + "|||" + t.ObjLabel
	}
	user := fmt.Sprintf(predicateUserPrompt, sentence, strings.Join(lines, "\n"))

	answer, err := r.complete(ctx, StagePredicateDescription, fmt.Sprintf(predicateSystemPrompt, language), user)
	if err != nil {
		return nil, err
	}

	d := Decode(answer, predicateGrammar)
	reportMalformed(ctx, r, StagePredicateDescription, d)

	known := distinctPredicates(triplets)
	descriptions := make(map[string]string)
	var keys []string
	consistent := 0
	for _, p := range d.Records {
		label := strings.ToLower(p.label)
		if _, ok := CloseMatch(label, known, r.policy.LabelThreshold); !ok {
			continue
		}
		consistent++
		if _, seen := descriptions[label]; !seen {
			keys = append(keys, label)
		}
		descriptions[label] = p.description
	}
	r.reportInconsistent(ctx, StagePredicateDescription, len(d.Records)-consistent, len(d.Records))

	out := make([]Triplet, len(triplets))
	for i, t := range triplets {
		t.PredDescription = nil
		if key, ok := CloseMatch(strings.ToLower(t.PredLabel), keys, r.policy.AssociationCutoff); ok {
			desc := descriptions[key]
			t.PredDescription = &desc
		}
		out[i] = t
	}
	return out, nil
}

// distinctPredicates returns the lower-cased predicate labels of triplets,
// first occurrence order.
func distinctPredicates(triplets []Triplet) []string {
	seen := make(map[string]bool, len(triplets))
	var out []string
	for _, t := range triplets {
		p := strings.ToLower(t.PredLabel)
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
