package apispec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/forge-ai/testgen/shared/apierr"
	"gopkg.in/yaml.v3"
)

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

const (
	maxRefDepth = 16

	// maxNesting matches the depth limit yaml.v3 enforces on its own input.
	maxNesting = 10000
)

// Parse reads content in the given format ("json", "yaml" or "yml") and
// returns its Descriptor. Malformed input, or a document without an
// openapi/swagger version field, is a ParseError.
func Parse(content []byte, format string) (*Descriptor, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if !SupportedFormat(format) {
		return nil, apierr.New(apierr.Parse, "unsupported specification format %q", format)
	}

	var root *yaml.Node
	var err error
	if format == "json" {
		root, err = decodeJSON(content)
	} else {
		root, err = decodeYAML(content)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Parse, err, "invalid "+format+" specification")
	}
	if root == nil || root.Kind != yaml.MappingNode {
		return nil, apierr.New(apierr.Parse, "specification must be a %s object", format)
	}

	p := &parser{root: root}
	return p.descriptor()
}

func decodeYAML(content []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}
	return deref(doc.Content[0]), nil
}

// decodeJSON builds a yaml.Node tree from a JSON token stream so object key
// order survives.
func decodeJSON(content []byte) (*yaml.Node, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	n, err := jsonValue(dec, 0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty document")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return n, nil
}

func jsonValue(dec *json.Decoder, depth int) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		if depth >= maxNesting {
			return nil, fmt.Errorf("exceeded max depth of %d", maxNesting)
		}
		switch v {
		case '{':
			n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %v", kt)
				}
				val, err := jsonValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
			}
			_, err := dec.Token()
			return n, err
		case '[':
			n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				val, err := jsonValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, val)
			}
			_, err := dec.Token()
			return n, err
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}, nil
	case json.Number:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: v.String()}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprint(v)}, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

type parser struct {
	root    *yaml.Node
	swagger bool
}

func (p *parser) descriptor() (*Descriptor, error) {
	openapi := scalar(get(p.root, "openapi"))
	swagger := scalar(get(p.root, "swagger"))
	if openapi == "" && swagger == "" {
		return nil, apierr.New(apierr.Parse, "not an OpenAPI or Swagger document: missing openapi/swagger version field")
	}
	p.swagger = openapi == ""

	info := p.resolve(get(p.root, "info"))
	d := &Descriptor{
		Title:       scalar(get(info, "title")),
		Version:     scalar(get(info, "version")),
		Description: strings.TrimSpace(scalar(get(info, "description"))),
		BaseURL:     p.baseURL(),
		Endpoints:   []Endpoint{},
		Schemas:     []Schema{},
	}

	paths := p.resolve(get(p.root, "paths"))
	if paths != nil && paths.Kind != yaml.MappingNode && paths.Tag != "!!null" {
		return nil, apierr.New(apierr.Parse, "paths must be an object")
	}
	eachPair(paths, func(path string, item *yaml.Node) {
		item = p.resolve(item)
		shared := p.parameters(get(item, "parameters"))
		eachPair(item, func(method string, op *yaml.Node) {
			if !httpMethods[strings.ToLower(method)] {
				return
			}
			op = p.resolve(op)
			var responses []string
			eachPair(p.resolve(get(op, "responses")), func(code string, _ *yaml.Node) {
				responses = append(responses, code)
			})
			d.Endpoints = append(d.Endpoints, Endpoint{
				Method:      strings.ToUpper(method),
				Path:        path,
				Summary:     strings.TrimSpace(scalar(get(op, "summary"))),
				OperationID: scalar(get(op, "operationId")),
				Parameters:  mergeParameters(shared, p.parameters(get(op, "parameters"))),
				Responses:   responses,
			})
		})
	})

	var schemas *yaml.Node
	if p.swagger {
		schemas = get(p.root, "definitions")
	} else {
		schemas = get(p.resolve(get(p.root, "components")), "schemas")
	}
	eachPair(p.resolve(schemas), func(name string, s *yaml.Node) {
		d.Schemas = append(d.Schemas, Schema{Name: name, Properties: p.properties(s, map[*yaml.Node]bool{})})
	})

	return d, nil
}

func (p *parser) baseURL() string {
	if !p.swagger {
		servers := p.resolve(get(p.root, "servers"))
		if servers != nil && servers.Kind == yaml.SequenceNode && len(servers.Content) > 0 {
			return scalar(get(p.resolve(servers.Content[0]), "url"))
		}
		return ""
	}
	host := scalar(get(p.root, "host"))
	if host == "" {
		return scalar(get(p.root, "basePath"))
	}
	scheme := "https"
	if schemes := get(p.root, "schemes"); schemes != nil && schemes.Kind == yaml.SequenceNode && len(schemes.Content) > 0 {
		scheme = scalar(schemes.Content[0])
	}
	return scheme + "://" + host + scalar(get(p.root, "basePath"))
}

func (p *parser) parameters(list *yaml.Node) []Parameter {
	list = p.resolve(list)
	if list == nil || list.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]Parameter, 0, len(list.Content))
	for _, n := range list.Content {
		n = p.resolve(n)
		name := scalar(get(n, "name"))
		if name == "" {
			continue
		}
		out = append(out, Parameter{Name: name, In: scalar(get(n, "in"))})
	}
	return out
}

// mergeParameters lets operation parameters override path-level ones with
// the same name and location.
func mergeParameters(shared, own []Parameter) []Parameter {
	out := make([]Parameter, 0, len(shared)+len(own))
	for _, s := range shared {
		overridden := false
		for _, o := range own {
			if o.Name == s.Name && o.In == s.In {
				overridden = true
				break
			}
		}
		if !overridden {
			out = append(out, s)
		}
	}
	return append(out, own...)
}

// properties lists a schema's own properties followed by those of its allOf
// members. seen holds the schemas already expanded on this path, so a
// member that refers back to an enclosing schema contributes nothing.
func (p *parser) properties(schema *yaml.Node, seen map[*yaml.Node]bool) []Property {
	schema = p.resolve(schema)
	if schema == nil || seen[schema] {
		return []Property{}
	}
	seen[schema] = true
	defer delete(seen, schema)

	var out []Property
	eachPair(p.resolve(get(schema, "properties")), func(name string, prop *yaml.Node) {
		out = append(out, Property{Name: name, Type: p.typeOf(prop, 0)})
	})
	if all := get(schema, "allOf"); all != nil && all.Kind == yaml.SequenceNode {
		for _, member := range all.Content {
			out = append(out, p.properties(member, seen)...)
		}
	}
	if out == nil {
		out = []Property{}
	}
	return out
}

func (p *parser) typeOf(schema *yaml.Node, depth int) string {
	schema = deref(schema)
	if schema == nil || depth > maxRefDepth {
		return "unknown"
	}
	if ref := scalar(get(schema, "$ref")); ref != "" {
		return refName(ref)
	}
	typ := scalar(get(schema, "type"))
	switch {
	case typ == "array":
		if items := get(schema, "items"); items != nil {
			return "array<" + p.typeOf(items, depth+1) + ">"
		}
		return "array"
	case typ != "":
		return typ
	case get(schema, "properties") != nil:
		return "object"
	}
	return "unknown"
}

// resolve follows local "$ref" pointers ("#/components/schemas/Pet").
// Remote references are left as-is.
func (p *parser) resolve(n *yaml.Node) *yaml.Node {
	n = deref(n)
	for i := 0; i < maxRefDepth && n != nil; i++ {
		ref := scalar(get(n, "$ref"))
		if !strings.HasPrefix(ref, "#/") {
			return n
		}
		target := p.root
		for _, part := range strings.Split(ref[2:], "/") {
			part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
			target = deref(get(target, part))
			if target == nil {
				return n
			}
		}
		n = target
	}
	return n
}

func refName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func get(n *yaml.Node, key string) *yaml.Node {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return deref(n.Content[i+1])
		}
	}
	return nil
}

func eachPair(n *yaml.Node, fn func(key string, val *yaml.Node)) {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		fn(n.Content[i].Value, deref(n.Content[i+1]))
	}
}

func scalar(n *yaml.Node) string {
	n = deref(n)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return n.Value
}
