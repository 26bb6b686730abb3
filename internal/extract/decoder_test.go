package extract

import (
	"regexp"
	"strconv"
	"testing"
)

func TestDecode_Accounting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		answer      string
		wantRecords int
		wantDropped int
	}{
		{"all valid", "- a|||b|||[c]\n- d|||e|||[f, g]", 2, 0},
		{"one malformed", "- a|||b|||[c]\nnot a record\n- d|||e|||[f]", 2, 1},
		{"surrounding whitespace", "\n\n  - a|||b|||[c]  \n\n", 1, 0},
		{"missing types", "- a|||b", 0, 1},
		{"empty answer", "", 0, 1},
		{"blank line inside", "- a|||b|||[c]\n\n- d|||e|||[f]", 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Decode(tt.answer, entityGrammar)
			if len(d.Records) != tt.wantRecords {
				t.Errorf("records = %d, want %d", len(d.Records), tt.wantRecords)
			}
			if d.Dropped != tt.wantDropped {
				t.Errorf("dropped = %d, want %d", d.Dropped, tt.wantDropped)
			}
			if len(d.Records)+d.Dropped != d.Total {
				t.Errorf("records(%d)+dropped(%d) != total(%d)", len(d.Records), d.Dropped, d.Total)
			}
			if len(d.Rejected) != d.Dropped {
				t.Errorf("rejected lines = %d, want %d", len(d.Rejected), d.Dropped)
			}
			if d.Grammar != "entity" {
				t.Errorf("grammar = %q, want entity", d.Grammar)
			}
		})
	}
}

func TestDecode_ParseRejects(t *testing.T) {
	t.Parallel()

	g := Grammar[int]{
		Name:    "number",
		Pattern: regexp.MustCompile(`^(\d+)$`),
		Parse: func(sub []string) (int, bool) {
			n, err := strconv.Atoi(sub[1])
			return n, err == nil
		},
	}

	d := Decode("1\n99999999999999999999999\n3", g)
	if len(d.Records) != 2 || d.Records[0] != 1 || d.Records[1] != 3 {
		t.Errorf("records = %v, want [1 3]", d.Records)
	}
	if d.Dropped != 1 || d.Rejected[0] != "99999999999999999999999" {
		t.Errorf("dropped = %d rejected = %q", d.Dropped, d.Rejected)
	}
}

func TestEntityGrammar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line  string
		ok    bool
		label string
		desc  string
		types []string
	}{
		{"- Paris|||Capital city of France|||[city, capital]", true, "Paris", "Capital city of France", []string{"city", "capital"}},
		{"-Paris|||City|||[city]", true, "Paris", "City", []string{"city"}},
		{"- Paris |||  City ||| [city,capital ]", true, "Paris", "City", []string{"city", "capital"}},
		{"- Jean-Paul Sartre|||French philosopher|||[person, writer]", true, "Jean-Paul Sartre", "French philosopher", []string{"person", "writer"}},
		{"Paris|||City|||[city]", false, "", "", nil},
		{"- Paris|||City|||city", false, "", "", nil},
		{"- Paris|||City|||[]", false, "", "", nil},
		{"- Paris||City||[city]", false, "", "", nil},
	}
	for _, tt := range tests {
		d := Decode(tt.line, entityGrammar)
		if got := len(d.Records) == 1; got != tt.ok {
			t.Errorf("%q: parsed = %v, want %v", tt.line, got, tt.ok)
			continue
		}
		if !tt.ok {
			continue
		}
		e := d.Records[0]
		if e.Label != tt.label || e.Description != tt.desc {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", tt.line, e.Label, e.Description, tt.label, tt.desc)
		}
		if len(e.Types) != len(tt.types) {
			t.Errorf("%q: types = %q, want %q", tt.line, e.Types, tt.types)
			continue
		}
		for i := range e.Types {
			if e.Types[i] != tt.types[i] {
				t.Errorf("%q: types = %q, want %q", tt.line, e.Types, tt.types)
				break
			}
		}
	}
}

func TestMentionGrammar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line      string
		ok        bool
		id        int
		label     string
		mentioned bool
	}{
		{"1) Paris|||yes", true, 0, "Paris", true},
		{"2) France|||no", true, 1, "France", false},
		{"3)Rome||| YES", true, 2, "Rome", true},
		{"4) Milan|||No", true, 3, "Milan", false},
		{"1) Paris|||maybe", false, 0, "", false},
		{"Paris|||yes", false, 0, "", false},
		{"1. Paris|||yes", false, 0, "", false},
	}
	for _, tt := range tests {
		d := Decode(tt.line, mentionGrammar)
		if got := len(d.Records) == 1; got != tt.ok {
			t.Errorf("%q: parsed = %v, want %v", tt.line, got, tt.ok)
			continue
		}
		if !tt.ok {
			continue
		}
		m := d.Records[0]
		if m.id != tt.id || m.label != tt.label || m.mentioned != tt.mentioned {
			t.Errorf("%q: got %+v", tt.line, m)
		}
	}
}

func TestRelationGrammar(t *testing.T) {
	t.Parallel()

	d := Decode("- Paris (1)|||is capital of|||France (2)\n-Rome(3)|||capital of|||Italy(4)\n- Paris|||is capital of|||France", relationGrammar)
	if d.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", d.Dropped)
	}
	if len(d.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(d.Records))
	}
	want := relation{subjLabel: "Paris", subjN: 1, pred: "is capital of", objLabel: "France", objN: 2}
	if d.Records[0] != want {
		t.Errorf("record = %+v, want %+v", d.Records[0], want)
	}
	if d.Records[1].subjLabel != "Rome" || d.Records[1].objN != 4 {
		t.Errorf("record = %+v", d.Records[1])
	}
}

func TestPredicateGrammar(t *testing.T) {
	t.Parallel()

	d := Decode("- is capital of|||Links a city to the country it governs\n- borders\n- a|||b|||c", predicateGrammar)
	if len(d.Records) != 1 || d.Dropped != 2 {
		t.Fatalf("records = %d dropped = %d, want 1 and 2", len(d.Records), d.Dropped)
	}
	if d.Records[0].label != "is capital of" || d.Records[0].description != "Links a city to the country it governs" {
		t.Errorf("record = %+v", d.Records[0])
	}
}
