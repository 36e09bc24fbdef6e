package document

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Filter expressions select documents in List, for example
//
//	status = 'open' and (amount >= 100 or priority = true)
//
// Fields are attribute or envelope names. Values are quoted strings,
// numbers, true, false or null.

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(AND|OR|TRUE|FALSE|NULL)\b`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Number", Pattern: `[-+]?\d+(\.\d+)?([eE][-+]?\d+)?`},
	{Name: "String", Pattern: `'(\\.|[^'])*'|"(\\.|[^"])*"`},
	{Name: "Operator", Pattern: `!=|>=|<=|=|>|<`},
	{Name: "Punct", Pattern: `[()]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var filterParser = participle.MustBuild[Filter](
	participle.Lexer(filterLexer),
	participle.Unquote("String"),
	participle.CaseInsensitive("Keyword"),
	participle.Elide("Whitespace"),
)

// Filter is a parsed filter expression: a disjunction of conjunctions.
type Filter struct {
	Or []*AndTerm `parser:"@@ ( 'OR' @@ )*"`
}

// AndTerm is a conjunction of terms.
type AndTerm struct {
	And []*Term `parser:"@@ ( 'AND' @@ )*"`
}

// Term is a parenthesized filter or a single comparison.
type Term struct {
	Group      *Filter     `parser:"  '(' @@ ')'"`
	Comparison *Comparison `parser:"| @@"`
}

// Comparison compares one field with a literal.
type Comparison struct {
	Field string  `parser:"@Ident"`
	Op    string  `parser:"@Operator"`
	Value Literal `parser:"@@"`
}

// Literal is a filter value.
type Literal struct {
	String *string  `parser:"  @String"`
	Number *float64 `parser:"| @Number"`
	Bool   *Boolean `parser:"| @('TRUE' | 'FALSE')"`
	Null   bool     `parser:"| @'NULL'"`
}

// Boolean captures true/false case-insensitively.
type Boolean bool

// Capture implements participle.Capture.
func (b *Boolean) Capture(values []string) error {
	*b = Boolean(strings.EqualFold(values[0], "true"))
	return nil
}

// ParseFilter parses a filter expression.
func ParseFilter(expr string) (*Filter, error) {
	f, err := filterParser.ParseString("", expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return f, nil
}

// Fields returns every field name the filter references.
func (f *Filter) Fields() []string {
	var out []string
	for _, and := range f.Or {
		for _, t := range and.And {
			if t.Group != nil {
				out = append(out, t.Group.Fields()...)
			} else {
				out = append(out, t.Comparison.Field)
			}
		}
	}
	return out
}

// Match evaluates the filter against a flattened document.
func (f *Filter) Match(row map[string]any) bool {
	for _, and := range f.Or {
		if and.match(row) {
			return true
		}
	}
	return false
}

func (a *AndTerm) match(row map[string]any) bool {
	for _, t := range a.And {
		var ok bool
		if t.Group != nil {
			ok = t.Group.Match(row)
		} else {
			ok = t.Comparison.match(row)
		}
		if !ok {
			return false
		}
	}
	return true
}

func (c *Comparison) match(row map[string]any) bool {
	actual := row[c.Field]
	want := c.Value.value()

	switch c.Op {
	case "=":
		return equal(actual, want)
	case "!=":
		return !equal(actual, want)
	}

	cmp, ok := compare(actual, want)
	if !ok {
		return false
	}
	switch c.Op {
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	}
	return false
}

func (l Literal) value() any {
	switch {
	case l.String != nil:
		return *l.String
	case l.Number != nil:
		return *l.Number
	case l.Bool != nil:
		return bool(*l.Bool)
	}
	return nil
}

func equal(actual, want any) bool {
	if a, ok := toFloat(actual); ok {
		w, ok := want.(float64)
		return ok && a == w
	}
	return reflect.DeepEqual(actual, want)
}

// compare orders numbers numerically and strings lexically. Other
// combinations are not ordered.
func compare(actual, want any) (int, bool) {
	if a, ok := toFloat(actual); ok {
		w, ok := want.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case a < w:
			return -1, true
		case a > w:
			return 1, true
		}
		return 0, true
	}
	a, ok := actual.(string)
	if !ok {
		return 0, false
	}
	w, ok := want.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(a, w), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
