package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const relationSystemPrompt = `You find relations between entities in the text: the user provides you a list of known entities and a sentence in which those entities may be related. For each entity you check the relation with the other entities and if it exists you express the relation using a "predicate" that is expressive yet straightforward (max 5 words). Think about a predicate that could be used in an ontology for a knowledge graph.
Your output is the list of relations formatted as RDF triplets, that you format with an initial hyphen this way:
` + "`- <entity> (<entity index>)|||<predicate>|||<entity> (<entity index>)`" + `
The user text language may be anything, but your output should be %s!
`

type relation struct {
	subjLabel string
	subjN     int
	pred      string
	objLabel  string
	objN      int
}

// - <label> (<id>)|||<predicate>|||<label> (<id>)
var relationGrammar = Grammar[relation]{
	Name:    "relation",
	Pattern: regexp.MustCompile(`^- ?([^|]+)\((\d+)\) ?\|{3}([^|]+)\|{3}([^|]+)\((\d+)\)$`),
	Parse: func(sub []string) (relation, bool) {
		subjN, err := strconv.Atoi(sub[2])
		if err != nil {
			return relation{}, false
		}
		objN, err := strconv.Atoi(sub[5])
		if err != nil {
			return relation{}, false
		}
		return relation{
			subjLabel: strings.TrimSpace(sub[1]),
			subjN:     subjN,
			pred:      strings.TrimSpace(sub[3]),
			objLabel:  strings.TrimSpace(sub[4]),
			objN:      objN,
		}, true
	},
}

// extractRelations asks the model for relations among the mentioned
// entities. The model sees them numbered 1..k in the order of mentioned;
// the returned triplets carry the original entity indexes. Triplets whose
// subject or object cannot be tied back to a known entity are dropped.
func (r *runner) extractRelations(ctx context.Context, sentence string, mentioned []int, entities []Entity, language string) ([]Triplet, error) {
	lines := make([]string, len(mentioned))
	for n, i := range mentioned {
		lines[n] = strconv.Itoa(n+entityNumberBase) + ") " + entities[i].Label
	}
	user := fmt.Sprintf(entityListPrompt, strings.Join(lines, "\n"), sentence)

	answer, err := r.complete(ctx, StageRelationExtraction, fmt.Sprintf(relationSystemPrompt, language), user)
	if err != nil {
		return nil, err
	}

	d := Decode(answer, relationGrammar)
	reportMalformed(ctx, r, StageRelationExtraction, d)

	// resolve maps a presented number back to the original entity index.
	resolve := func(n int) int {
		pos := n - entityNumberBase
		if pos < 0 || pos >= len(mentioned) {
			return -1
		}
		return mentioned[pos]
	}

	var triplets []Triplet
	for _, rel := range d.Records {
		subj, obj := resolve(rel.subjN), resolve(rel.objN)
		if !r.entityConsistent(subj, rel.subjLabel, entities) || !r.entityConsistent(obj, rel.objLabel, entities) {
			continue
		}
		triplets = append(triplets, Triplet{
			SubjLabel: rel.subjLabel,
			SubjID:    subj,
			PredLabel: rel.pred,
			ObjLabel:  rel.objLabel,
			ObjID:     obj,
		})
	}
	r.reportInconsistent(ctx, StageRelationExtraction, len(d.Records)-len(triplets), len(d.Records))
	return triplets, nil
}
