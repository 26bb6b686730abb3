package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const mentionSystemPrompt = `You identify mentions of entities in the text: the user provides you a list of known entities and a sentence in which those entities may be mentioned. For each entity you tell if they are actually mentioned in the sentence by saying "yes" or "no".
You write the user list again in the same order with your additional answer formatted this way:
` + "`<entity ID>) <entity>|||<yes/no>`" + `
`

const entityListPrompt = "User entities:\n```\n%s\n```\n\nSentence:\n```\n%s\n```\n"

// entityNumberBase is the first number shown to the model for an entity list.
const entityNumberBase = 1

type mention struct {
	id        int
	label     string
	mentioned bool
}

// <N>) <label>|||<yes|no>
var mentionGrammar = Grammar[mention]{
	Name:    "mention",
	Pattern: regexp.MustCompile(`^(\d+)\) ?([^|]+)\|{3} ?([Yy][Ee][Ss]|[Nn][Oo])$`),
	Parse: func(sub []string) (mention, bool) {
		n, err := strconv.Atoi(sub[1])
		if err != nil {
			return mention{}, false
		}
		return mention{
			id:        n - entityNumberBase,
			label:     strings.TrimSpace(sub[2]),
			mentioned: strings.EqualFold(sub[3], "yes"),
		}, true
	},
}

// recognizeMentions returns the indexes of the entities the model marks as
// mentioned in sentence, in answer order. Every returned index is valid for
// entities.
func (r *runner) recognizeMentions(ctx context.Context, sentence string, entities []Entity) ([]int, error) {
	lines := make([]string, len(entities))
	for i, e := range entities {
		lines[i] = strconv.Itoa(i+entityNumberBase) + ") " + e.Label
	}
	user := fmt.Sprintf(entityListPrompt, strings.Join(lines, "\n"), sentence)

	answer, err := r.complete(ctx, StageMentionRecognition, mentionSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	d := Decode(answer, mentionGrammar)
	reportMalformed(ctx, r, StageMentionRecognition, d)

	var (
		ids        []int
		consistent int
	)
	for _, m := range d.Records {
		if !r.entityConsistent(m.id, m.label, entities) {
			continue
		}
		consistent++
		if m.mentioned {
			ids = append(ids, m.id)
		}
	}
	r.reportInconsistent(ctx, StageMentionRecognition, len(d.Records)-consistent, len(d.Records))
	return ids, nil
}

// entityConsistent reports whether id indexes a real entity whose label the
// restated one plausibly refers to.
func (r *runner) entityConsistent(id int, label string, entities []Entity) bool {
	if id < 0 || id >= len(entities) {
		return false
	}
	return r.policy.LabelMatches(label, entities[id].Label)
}
