// Package pipeline defines the per-leaf annotation value and the ordered
// list of render functions that fill it in.
package pipeline

import (
	"maps"
	"slices"

	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"

	"lukechampine.com/uint128"
)

// Style keys understood by the built-in renderers.
const (
	StyleBackground = "background"
	StyleColor      = "color"
	StyleBold       = "bold"
)

// Config is the visual annotation of one leaf block. A nil field in a
// stored override means "not set".
type Config struct {
	Style        map[string]string `json:"style,omitempty"`
	InnerContent []string          `json:"innerContent,omitempty"`
	Properties   map[string]any    `json:"properties,omitempty"`
}

// NewConfig returns a config with empty, non-nil fields.
func NewConfig() *Config {
	return &Config{
		Style:        make(map[string]string),
		InnerContent: []string{},
		Properties:   make(map[string]any),
	}
}

// DefaultConfig returns the structural defaults every leaf starts from:
// white text on black.
func DefaultConfig() *Config {
	c := NewConfig()
	c.Style[StyleBackground] = "rgb(0,0,0)"
	c.Style[StyleColor] = "rgb(255,255,255)"
	return c
}

// Clone returns a copy that shares nothing with c. Nil fields stay nil.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	return &Config{
		Style:        maps.Clone(c.Style),
		InnerContent: slices.Clone(c.InnerContent),
		Properties:   maps.Clone(c.Properties),
	}
}

// Overlay replaces each field of c with the matching field of o when that
// field is set. Maps and slices are copied, not merged.
func (c *Config) Overlay(o *Config) {
	if o == nil {
		return
	}
	if o.Style != nil {
		c.Style = maps.Clone(o.Style)
	}
	if o.InnerContent != nil {
		c.InnerContent = slices.Clone(o.InnerContent)
	}
	if o.Properties != nil {
		c.Properties = maps.Clone(o.Properties)
	}
}

// Merge appends o's content after c's and shallow-merges style and
// properties, with o winning on conflicts.
func (c *Config) Merge(o *Config) {
	if o == nil {
		return
	}
	c.InnerContent = append(c.InnerContent, o.InnerContent...)
	if len(o.Style) > 0 {
		if c.Style == nil {
			c.Style = make(map[string]string, len(o.Style))
		}
		maps.Copy(c.Style, o.Style)
	}
	if len(o.Properties) > 0 {
		if c.Properties == nil {
			c.Properties = make(map[string]any, len(o.Properties))
		}
		maps.Copy(c.Properties, o.Properties)
	}
}

// Float reads a numeric property, returning 0 when it is absent or not a
// number.
func (c *Config) Float(key string) float64 {
	if c == nil {
		return 0
	}
	switch v := c.Properties[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	}
	return 0
}

// RenderFunc annotates one leaf. It receives the canonical prefix string,
// the base address, the prefix length, and the config to mutate. Functions
// later in a pipeline see what earlier ones wrote.
type RenderFunc func(prefix string, base uint128.Uint128, bits int, cfg *Config)

// Pipeline is an ordered list of render functions.
type Pipeline []RenderFunc

// Run applies every function in order to cfg.
func (p Pipeline) Run(pfx prefix.Prefix, cfg *Config) {
	s := pfx.String()
	for _, f := range p {
		f(s, pfx.Base(), pfx.Bits(), cfg)
	}
}
