package dtmf

import "sort"

// Capabilities is the table of named handlers and transforms that state
// table actions may reference. Build it before constructing the engine:
//
//	caps := dtmf.NewCapabilities().
//	    Handler("lights_on", lightsOn).
//	    Transformer("minutes_from_digits", minutes)
//	engine := dtmf.NewEngine(caps)
//
// A Capabilities value is not safe for concurrent mutation; the engine
// takes its own copy.
type Capabilities struct {
	handlers     map[string]HandlerFunc
	transformers map[string]TransformFunc
}

// NewCapabilities returns an empty table.
func NewCapabilities() *Capabilities {
	return &Capabilities{
		handlers:     make(map[string]HandlerFunc),
		transformers: make(map[string]TransformFunc),
	}
}

// Handler binds name to fn. A nil fn removes the binding.
func (c *Capabilities) Handler(name string, fn HandlerFunc) *Capabilities {
	if fn == nil {
		delete(c.handlers, name)
		return c
	}
	c.handlers[name] = fn
	return c
}

// Transformer binds name to fn. A nil fn removes the binding.
func (c *Capabilities) Transformer(name string, fn TransformFunc) *Capabilities {
	if fn == nil {
		delete(c.transformers, name)
		return c
	}
	c.transformers[name] = fn
	return c
}

// HasHandler reports whether name is bound.
func (c *Capabilities) HasHandler(name string) bool {
	_, ok := c.handlers[name]
	return ok
}

// HasTransformer reports whether name is bound.
func (c *Capabilities) HasTransformer(name string) bool {
	_, ok := c.transformers[name]
	return ok
}

// HandlerNames returns the bound handler names in sorted order.
func (c *Capabilities) HandlerNames() []string {
	return sortedKeys(c.handlers)
}

// TransformerNames returns the bound transform names in sorted order.
func (c *Capabilities) TransformerNames() []string {
	return sortedKeys(c.transformers)
}

func (c *Capabilities) clone() *Capabilities {
	out := NewCapabilities()
	if c == nil {
		return out
	}
	for k, v := range c.handlers {
		out.handlers[k] = v
	}
	for k, v := range c.transformers {
		out.transformers[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
