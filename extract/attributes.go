package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Attribute is a single name/value pair.
type Attribute struct {
	Name  string
	Value string
}

// Attributes is an ordered attribute snapshot. It marshals to a JSON object
// whose keys keep DOM order.
type Attributes []Attribute

// AttributesOf snapshots the attributes of n in DOM order. Keys are unique;
// the first occurrence wins.
func AttributesOf(n *html.Node) Attributes {
	if n == nil {
		return nil
	}
	out := make(Attributes, 0, len(n.Attr))
	seen := make(map[string]struct{}, len(n.Attr))
	for _, a := range n.Attr {
		key := a.Key
		if a.Namespace != "" {
			key = a.Namespace + ":" + a.Key
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Attribute{Name: key, Value: a.Val})
	}
	return out
}

// Get returns the value for name.
func (a Attributes) Get(name string) (string, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Names returns the attribute names in order.
func (a Attributes) Names() []string {
	names := make([]string, len(a))
	for i, attr := range a {
		names[i] = attr.Name
	}
	return names
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, attr := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(attr.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(attr.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("extract: attributes: expected object, got %v", tok)
	}
	out := Attributes{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("extract: attributes: bad key %v", keyTok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("extract: attributes: value of %q: %w", key, err)
		}
		out = append(out, Attribute{Name: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}

// Category names a tooltip section.
type Category string

const (
	CategoryTesting       Category = "testing"
	CategoryAccessibility Category = "accessibility"
	CategoryContent       Category = "content"
)

// Section is one group of attributes rendered in the tooltip.
type Section struct {
	Category Category
	Title    string
	Entries  []Attribute
	// Text is the element text, set only on the content section.
	Text string
}

var (
	testingAttrs       = []string{"id", "name", "data-testid", "data-test", "data-cy", "data-automation-id"}
	accessibilityAttrs = []string{"role", "aria-label", "aria-labelledby", "aria-describedby", "aria-controls"}
	contentAttrs       = []string{"href", "src", "alt", "title", "placeholder", "value", "type"}
)

// Categorize groups attributes into the testing, accessibility and
// content/behavior sections. Buckets are not exclusive. A section is
// returned only when it has at least one entry, or for content, when text is
// non-empty.
func Categorize(attrs Attributes, text string) []Section {
	var out []Section

	if entries := pick(attrs, testingAttrs); len(entries) > 0 {
		out = append(out, Section{Category: CategoryTesting, Title: "Testing identifiers", Entries: entries})
	}

	a11y := pick(attrs, accessibilityAttrs)
	for _, attr := range attrs {
		if strings.HasPrefix(attr.Name, "aria-") && !contains(accessibilityAttrs, attr.Name) {
			a11y = append(a11y, attr)
		}
	}
	if len(a11y) > 0 {
		out = append(out, Section{Category: CategoryAccessibility, Title: "Accessibility", Entries: a11y})
	}

	content := pick(attrs, contentAttrs)
	if len(content) > 0 || text != "" {
		out = append(out, Section{Category: CategoryContent, Title: "Content & behavior", Entries: content, Text: text})
	}
	return out
}

func pick(attrs Attributes, names []string) []Attribute {
	var out []Attribute
	for _, name := range names {
		if v, ok := attrs.Get(name); ok {
			out = append(out, Attribute{Name: name, Value: v})
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
