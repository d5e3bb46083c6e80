package reader

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// node is a generic element of the method document. The vendor schema is
// wide and version-dependent, so elements are kept as a tree and looked up
// by their permname attribute rather than unmarshalled into fixed structs.
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []*node    `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (n *node) name() string {
	return n.XMLName.Local
}

func (n *node) attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// child returns the first direct child with the given element name.
func (n *node) child(name string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.name() == name {
			return c
		}
	}
	return nil
}

func (n *node) children(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for _, c := range n.Children {
		if c.name() == name {
			out = append(out, c)
		}
	}
	return out
}

// decodeMethodFile parses the method document. Method files are written in
// ISO-8859-1 regardless of what the prolog declares, so the byte stream is
// transcoded up front and the declared charset is ignored.
func decodeMethodFile(path string) (*node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeMethod(f)
}

func decodeMethod(r io.Reader) (*node, error) {
	dec := xml.NewDecoder(charmap.ISO8859_1.NewDecoder().Reader(r))
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	var root node
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding method XML: %w", err)
	}
	return &root, nil
}

// RawValue is an unconverted field value: a scalar or a list of entries.
type RawValue struct {
	Text   string
	List   []string
	IsList bool
}

// String joins list entries with ";" for logging and display of raw input.
func (v RawValue) String() string {
	if v.IsList {
		return strings.Join(v.List, ";")
	}
	return v.Text
}

// rawValue extracts the value of a parameter element. Elements with children
// are lists: entry value attributes when present, otherwise entry text.
func rawValue(n *node) (RawValue, bool) {
	if len(n.Children) > 0 {
		_, useAttr := n.Children[0].attr("value")
		list := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			if useAttr {
				v, _ := c.attr("value")
				list = append(list, strings.TrimSpace(v))
			} else {
				list = append(list, strings.TrimSpace(c.Text))
			}
		}
		return RawValue{List: list, IsList: true}, true
	}
	v, ok := n.attr("value")
	if !ok {
		return RawValue{}, false
	}
	return RawValue{Text: strings.TrimSpace(v)}, true
}

// scope resolves parameter values inside one element subtree.
type scope struct {
	root *node
	skip string // element name whose subtree is excluded, e.g. the timetable
}

// dependents returns the dependent blocks of the scope in document order.
func (s scope) dependents() []*node {
	var out []*node
	var walk func(n *node)
	walk = func(n *node) {
		for _, c := range n.Children {
			if s.skip != "" && c.name() == s.skip {
				continue
			}
			if c.name() == "dependent" {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	if s.root != nil {
		walk(s.root)
	}
	return out
}

// collectPlain records the first value of each permname found outside
// dependent blocks. Keys already present in into are left untouched.
func collectPlain(n *node, skip string, into map[string]RawValue) {
	if n == nil {
		return
	}
	for _, c := range n.Children {
		if skip != "" && c.name() == skip {
			continue
		}
		if c.name() == "dependent" {
			continue
		}
		if pn, ok := c.attr("permname"); ok {
			if _, seen := into[pn]; !seen {
				if v, ok := rawValue(c); ok {
					into[pn] = v
				}
			}
		}
		collectPlain(c, skip, into)
	}
}

// resolve collects every parameter of the scope. Dependent blocks matching
// both polarity and ion source win over polarity-only matches, which win
// over source-only matches, which win over plain elements. Parameters that
// only exist in non-matching dependent blocks are taken from the first such
// block as a last resort.
func (s scope) resolve(polarity, source string) map[string]RawValue {
	out := make(map[string]RawValue)
	if s.root == nil {
		return out
	}

	deps := s.dependents()
	byPriority := make([][]*node, 4)
	for _, d := range deps {
		p := dependentPriority(d, polarity, source)
		byPriority[p] = append(byPriority[p], d)
	}
	for p := 3; p >= 1; p-- {
		for _, d := range byPriority[p] {
			collectPlain(d, "", out)
		}
	}
	collectPlain(s.root, s.skip, out)
	for _, d := range byPriority[0] {
		collectPlain(d, "", out)
	}
	return out
}

func dependentPriority(d *node, polarity, source string) int {
	pol, hasPol := d.attr("polarity")
	src, hasSrc := d.attr("source")
	polMatch := hasPol && polarity != "" && strings.EqualFold(pol, polarity)
	srcMatch := hasSrc && source != "" && strings.EqualFold(src, source)
	switch {
	case polMatch && srcMatch:
		return 3
	case polMatch:
		return 2
	case srcMatch:
		return 1
	default:
		return 0
	}
}

// findFirst returns the first value of permname anywhere in the scope,
// dependent blocks included.
func (s scope) findFirst(permname string) (RawValue, bool) {
	var found *node
	var walk func(n *node) bool
	walk = func(n *node) bool {
		for _, c := range n.Children {
			if s.skip != "" && c.name() == s.skip {
				continue
			}
			if pn, ok := c.attr("permname"); ok && pn == permname {
				found = c
				return true
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	if s.root == nil || !walk(s.root) {
		return RawValue{}, false
	}
	return rawValue(found)
}

// sourceNames lists the distinct ion sources named by dependent blocks.
func sourceNames(roots ...*node) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.name() == "dependent" {
			if src, ok := n.attr("source"); ok && src != "" && !seen[strings.ToLower(src)] {
				seen[strings.ToLower(src)] = true
				out = append(out, src)
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}
