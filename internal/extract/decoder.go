package extract

import (
	"regexp"
	"strings"
)

// Grammar describes the expected shape of one answer line for a stage.
// Pattern must match the whole trimmed line; Parse turns its submatches
// into a record and may still reject the line (e.g. an id that does not
// fit in an int).
type Grammar[T any] struct {
	Name    string
	Pattern *regexp.Regexp
	Parse   func(sub []string) (T, bool)
}

// Decoded is the outcome of decoding one answer. Len(Records)+Dropped
// always equals Total.
type Decoded[T any] struct {
	Grammar  string
	Records  []T
	Total    int
	Dropped  int
	Rejected []string
}

// Decode splits answer into lines and parses every line that matches g.
// Lines that do not match are counted and kept in Rejected; decoding never fails.
func Decode[T any](answer string, g Grammar[T]) Decoded[T] {
	lines := strings.Split(strings.TrimSpace(answer), "\n")
	out := Decoded[T]{Grammar: g.Name, Total: len(lines)}

	for _, line := range lines {
		sub := g.Pattern.FindStringSubmatch(strings.TrimSpace(line))
		if sub == nil {
			out.reject(line)
			continue
		}
		rec, ok := g.Parse(sub)
		if !ok {
			out.reject(line)
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

func (d *Decoded[T]) reject(line string) {
	d.Dropped++
	d.Rejected = append(d.Rejected, line)
}
