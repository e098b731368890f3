package mailmerge

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default placeholder delimiters.
const (
	DefaultOpenDelimiter  = "<<"
	DefaultCloseDelimiter = ">>"
)

// Token is one placeholder literal and the record field it stands for.
type Token struct {
	Text  string
	Field string
}

// Registry is the fixed, ordered set of placeholder tokens recognised in
// templates. Text that is not a registered token is never substituted, even
// when it looks like a placeholder.
type Registry struct {
	open   string
	close  string
	tokens []Token
	index  map[string]int
}

// NewRegistry builds a registry wrapping every field name in the default
// delimiters. Blank names are ignored; for duplicates the first one wins.
func NewRegistry(fields ...string) *Registry {
	return NewRegistryWithDelimiters(DefaultOpenDelimiter, DefaultCloseDelimiter, fields...)
}

// NewRegistryWithDelimiters is NewRegistry with custom delimiters.
func NewRegistryWithDelimiters(openDelim, closeDelim string, fields ...string) *Registry {
	r := &Registry{open: openDelim, close: closeDelim, index: make(map[string]int)}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		r.add(Token{Text: openDelim + f + closeDelim, Field: f})
	}
	return r
}

func (r *Registry) add(t Token) bool {
	if t.Text == "" || t.Field == "" {
		return false
	}
	if _, ok := r.index[t.Text]; ok {
		return false
	}
	r.index[t.Text] = len(r.tokens)
	r.tokens = append(r.tokens, t)
	return true
}

// Delimiters returns the opening and closing delimiters.
func (r *Registry) Delimiters() (string, string) {
	return r.open, r.close
}

// Tokens returns the registered tokens in registration order.
func (r *Registry) Tokens() []Token {
	out := make([]Token, len(r.tokens))
	copy(out, r.tokens)
	return out
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	return len(r.tokens)
}

// Lookup returns the field a token stands for.
func (r *Registry) Lookup(token string) (string, bool) {
	i, ok := r.index[token]
	if !ok {
		return "", false
	}
	return r.tokens[i].Field, true
}

// Fields returns the distinct field names in registration order.
func (r *Registry) Fields() []string {
	seen := make(map[string]bool, len(r.tokens))
	var out []string
	for _, t := range r.tokens {
		if !seen[t.Field] {
			seen[t.Field] = true
			out = append(out, t.Field)
		}
	}
	return out
}

// next finds the earliest registered token in text at or after from. When
// several tokens start at the same index the longest one wins.
func (r *Registry) next(text string, from int) (int, Token, bool) {
	best := -1
	var found Token
	if from > len(text) {
		return best, found, false
	}
	rest := text[from:]
	for _, t := range r.tokens {
		i := strings.Index(rest, t.Text)
		if i < 0 {
			continue
		}
		if best < 0 || i < best || (i == best && len(t.Text) > len(found.Text)) {
			best = i
			found = t
		}
	}
	if best < 0 {
		return -1, Token{}, false
	}
	return from + best, found, true
}

// registryFile is the YAML layout of a registry file:
//
//	delimiters:
//	  open: "<<"
//	  close: ">>"
//	fields:
//	  - NAME
//	  - "JOB #"
//	tokens:
//	  - token: "{CLIENT}"
//	    field: NAME
type registryFile struct {
	Delimiters struct {
		Open  string `yaml:"open"`
		Close string `yaml:"close"`
	} `yaml:"delimiters"`
	Fields []string `yaml:"fields"`
	Tokens []struct {
		Token string `yaml:"token"`
		Field string `yaml:"field"`
	} `yaml:"tokens"`
}

// LoadRegistry reads a YAML registry definition.
func LoadRegistry(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var def registryFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}

	openDelim, closeDelim := def.Delimiters.Open, def.Delimiters.Close
	if openDelim == "" {
		openDelim = DefaultOpenDelimiter
	}
	if closeDelim == "" {
		closeDelim = DefaultCloseDelimiter
	}

	reg := NewRegistryWithDelimiters(openDelim, closeDelim, def.Fields...)
	verr := &ValidationError{}
	for i, t := range def.Tokens {
		field := strings.TrimSpace(t.Field)
		switch {
		case t.Token == "":
			verr.Add(fmt.Sprintf("tokens[%d].token", i), "must not be empty")
		case field == "":
			verr.Add(fmt.Sprintf("tokens[%d].field", i), "must not be empty")
		default:
			reg.add(Token{Text: t.Token, Field: field})
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		return nil, &ValidationError{Issues: []ValidationIssue{{Field: "fields", Message: "registry defines no tokens"}}}
	}
	return reg, nil
}

// LoadRegistryFile reads a YAML registry definition from path.
func LoadRegistryFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewDocumentError("load registry", path, err)
	}
	defer f.Close()

	reg, err := LoadRegistry(f)
	if err != nil {
		return nil, WithContext(err, "load registry", map[string]any{"path": path})
	}
	return reg, nil
}
