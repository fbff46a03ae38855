package dtmf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"regexp/syntax"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTimeout is the dwell timeout used when neither the state nor the
// table settings declare one.
const DefaultTimeout = 30 * time.Second

// maxClassSpan bounds character class ranges during alphabet checks.
// The dial-pad alphabet has twelve symbols.
const maxClassSpan = 12

// tableDocument is the on-disk shape of a command table.
type tableDocument struct {
	Settings struct {
		// DefaultTimeout is in milliseconds.
		DefaultTimeout int `yaml:"default_timeout"`
	} `yaml:"settings"`
	States map[string]stateDocument `yaml:"states"`
}

type stateDocument struct {
	Description string              `yaml:"description"`
	Handlers    []HandlerDefinition `yaml:"handlers"`
	Timeout     *int                `yaml:"timeout"` // milliseconds
	OnEnter     []string            `yaml:"on_enter"`
	OnTimeout   string              `yaml:"on_timeout"`
	OnInvalid   string              `yaml:"on_invalid"`
}

// LoadFile reads a command table from a YAML file.
func LoadFile(path string) ([]StateDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("reading %s: %v", path, err)}}
	}
	return ParseTable(data)
}

// ParseTable decodes a YAML command table into state definitions, sorted by
// name. Unknown keys are rejected so typos surface at startup.
//
// Structural validation happens in Engine.Load.
func ParseTable(data []byte) ([]StateDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc tableDocument
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigurationError{Problems: []string{fmt.Sprintf("parsing command table: %v", err)}}
	}

	defaultTimeout := DefaultTimeout
	if doc.Settings.DefaultTimeout > 0 {
		defaultTimeout = time.Duration(doc.Settings.DefaultTimeout) * time.Millisecond
	}

	names := sortedKeys(doc.States)
	defs := make([]StateDefinition, 0, len(names))
	for _, name := range names {
		sd := doc.States[name]
		timeout := defaultTimeout
		if sd.Timeout != nil {
			timeout = time.Duration(*sd.Timeout) * time.Millisecond
		}
		defs = append(defs, StateDefinition{
			Name:        name,
			Description: sd.Description,
			Handlers:    sd.Handlers,
			Timeout:     timeout,
			OnEnter:     sd.OnEnter,
			OnTimeout:   sd.OnTimeout,
			OnInvalid:   sd.OnInvalid,
		})
	}
	return defs, nil
}

// compiledHandler is a handler definition with its anchored pattern.
type compiledHandler struct {
	def HandlerDefinition
	re  *regexp.Regexp
}

// matches reports whether the buffer satisfies the pattern and terminator.
func (h *compiledHandler) matches(input string) bool {
	if !h.re.MatchString(input) {
		return false
	}
	return h.def.Terminator == "" || strings.HasSuffix(input, h.def.Terminator)
}

type compiledState struct {
	def      StateDefinition
	handlers []compiledHandler
}

// compile validates definitions against each other and against the bound
// capabilities. Unbound names are problems in strict mode and warnings
// otherwise.
func compile(defs []StateDefinition, caps *Capabilities, strict bool) (map[string]*compiledState, []string, error) {
	var problems, warnings []string
	unbound := func(msg string) {
		if strict {
			problems = append(problems, msg)
			return
		}
		warnings = append(warnings, msg)
	}

	if len(defs) == 0 {
		return nil, nil, &ConfigurationError{Problems: []string{"no states declared"}}
	}

	states := make(map[string]*compiledState, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			problems = append(problems, "state with empty name")
			continue
		}
		if _, dup := states[def.Name]; dup {
			problems = append(problems, fmt.Sprintf("state %q declared twice", def.Name))
			continue
		}
		states[def.Name] = &compiledState{def: def}
	}

	if _, ok := states[InitialState]; !ok {
		problems = append(problems, fmt.Sprintf("required state %q is not declared", InitialState))
	}

	target := func(state, field, name string) {
		if name == "" {
			return
		}
		if _, ok := states[name]; !ok {
			problems = append(problems, fmt.Sprintf("state %q: %s target %q is not declared", state, field, name))
		}
	}

	for _, name := range sortedKeys(states) {
		st := states[name]
		def := st.def

		if def.Timeout <= 0 {
			problems = append(problems, fmt.Sprintf("state %q: timeout must be positive", name))
		}
		target(name, "on_timeout", def.OnTimeout)
		target(name, "on_invalid", def.OnInvalid)

		for _, h := range def.OnEnter {
			if !caps.HasHandler(h) {
				unbound(fmt.Sprintf("state %q: on_enter handler %q is not registered", name, h))
			}
		}

		for i, hd := range def.Handlers {
			where := fmt.Sprintf("state %q handler %d", name, i)

			if hd.Pattern == "" {
				problems = append(problems, where+": pattern is required")
				continue
			}
			re, err := compilePattern(hd.Pattern)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", where, err))
				continue
			}
			if hd.Terminator != "" {
				if _, err := Classify(hd.Terminator); err != nil {
					problems = append(problems, fmt.Sprintf("%s: terminator %q is not a dial-pad symbol", where, hd.Terminator))
				}
			}
			target(name, where+" next_state", hd.NextState)

			if hd.Action.Handler != "" && !caps.HasHandler(hd.Action.Handler) {
				unbound(fmt.Sprintf("%s: handler %q is not registered", where, hd.Action.Handler))
			}
			if hd.Action.Transform != "" && !caps.HasTransformer(hd.Action.Transform) {
				unbound(fmt.Sprintf("%s: transform %q is not registered", where, hd.Action.Transform))
			}

			st.handlers = append(st.handlers, compiledHandler{def: hd, re: re})
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, warnings, &ConfigurationError{Problems: problems}
	}
	return states, warnings, nil
}

// compilePattern checks the pattern only uses dial-pad symbols and anchors it
// at both ends.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	parsed, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	if err := checkAlphabet(parsed); err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	return re, nil
}

func checkAlphabet(re *syntax.Regexp) error {
	switch re.Op {
	case syntax.OpLiteral:
		for _, r := range re.Rune {
			if !isSymbol(r) {
				return fmt.Errorf("literal %q is not a dial-pad symbol", r)
			}
		}
	case syntax.OpCharClass:
		for i := 0; i+1 < len(re.Rune); i += 2 {
			lo, hi := re.Rune[i], re.Rune[i+1]
			if hi-lo > maxClassSpan {
				return fmt.Errorf("character class %s admits non dial-pad symbols", re)
			}
			for r := lo; r <= hi; r++ {
				if !isSymbol(r) {
					return fmt.Errorf("character class %s admits %q", re, r)
				}
			}
		}
	case syntax.OpBeginLine, syntax.OpEndLine, syntax.OpBeginText, syntax.OpEndText,
		syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return fmt.Errorf("anchors are implicit and must not be written")
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		return fmt.Errorf("wildcard . admits non dial-pad symbols")
	}
	for _, sub := range re.Sub {
		if err := checkAlphabet(sub); err != nil {
			return err
		}
	}
	return nil
}

func isSymbol(r rune) bool {
	return (r >= '0' && r <= '9') || r == '*' || r == '#'
}
