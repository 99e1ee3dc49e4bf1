// Package render provides the built-in annotation functions for map leaves.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Mr-Dark-debug/hilbertmap/internal/density"
	"github.com/Mr-Dark-debug/hilbertmap/internal/pipeline"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"

	colorful "github.com/lucasb-eyer/go-colorful"
	"lukechampine.com/uint128"
)

// PropSubnets holds a leaf's announced coverage in [0, 1].
const PropSubnets = "subnets"

const (
	black = "#000000"
	white = "#ffffff"
)

// ────────────────────────────────────────────────────────────
// Pipeline functions
// ────────────────────────────────────────────────────────────

// PrefixLabel appends the canonical prefix to the leaf text.
func PrefixLabel(s string, _ uint128.Uint128, _ int, cfg *pipeline.Config) {
	cfg.InnerContent = append(cfg.InnerContent, s)
}

// Density records the leaf's coverage in the index as PropSubnets.
func Density(ix *density.Index) pipeline.RenderFunc {
	return func(s string, _ uint128.Uint128, _ int, cfg *pipeline.Config) {
		p, err := prefix.Parse(s)
		if err != nil {
			return
		}
		cfg.Properties[PropSubnets] = ix.Coverage(p)
	}
}

// Coloring shades the leaf by PropSubnets. Empty blocks are dark slate;
// covered blocks get lighter violet as coverage grows.
func Coloring(_ string, _ uint128.Uint128, _ int, cfg *pipeline.Config) {
	v := clamp01(cfg.Float(PropSubnets))
	if v == 0 {
		cfg.Style[pipeline.StyleBackground] = colorful.Hcl(244.06, 0.12, 0.25).Clamped().Hex()
		cfg.Style[pipeline.StyleColor] = white
		return
	}
	cfg.Style[pipeline.StyleBackground] = colorful.Hcl(267.88, 0.35, 0.4+0.6*v).Clamped().Hex()
	if 50+200*v > 175 {
		cfg.Style[pipeline.StyleColor] = black
	} else {
		cfg.Style[pipeline.StyleColor] = white
	}
}

// Percentage appends PropSubnets as a percentage.
func Percentage(_ string, _ uint128.Uint128, _ int, cfg *pipeline.Config) {
	cfg.InnerContent = append(cfg.InnerContent, fmt.Sprintf("%.3f%%", cfg.Float(PropSubnets)*100))
}

// Default is the standard pipeline over a coverage index.
func Default(ix *density.Index) pipeline.Pipeline {
	return pipeline.Pipeline{PrefixLabel, Density(ix), Coloring, Percentage}
}

// Labels is the pipeline used when no dataset is loaded.
func Labels() pipeline.Pipeline {
	return pipeline.Pipeline{PrefixLabel}
}

// ────────────────────────────────────────────────────────────
// Ramp coloring
// ────────────────────────────────────────────────────────────

var rampStops = []colorful.Color{
	{R: 0, G: 0, B: 1},
	{R: 0, G: 1, B: 1},
	{R: 0, G: 1, B: 0},
	{R: 1, G: 1, B: 0},
	{R: 1, G: 0, B: 0},
}

// ramp is a 256-step blue, cyan, green, yellow, red gradient.
var ramp = buildRamp()

func buildRamp() [256]colorful.Color {
	var out [256]colorful.Color
	segments := len(rampStops) - 1
	for i := range out {
		pos := float64(i) / 255 * float64(segments)
		seg := min(int(pos), segments-1)
		out[i] = rampStops[seg].BlendRgb(rampStops[seg+1], pos-float64(seg))
	}
	return out
}

// Ramp returns the gradient color for v in [0, 1].
func Ramp(v float64) colorful.Color {
	return ramp[int(clamp01(v)*255+0.5)]
}

// BasicColor colors a leaf by a numeric property counted in addresses. The
// value is divided by the block size, then placed between lo and hi on the
// ramp.
func BasicColor(property string, lo, hi float64) pipeline.RenderFunc {
	return func(s string, _ uint128.Uint128, bits int, cfg *pipeline.Config) {
		p, err := prefix.Parse(s)
		if err != nil {
			return
		}
		v := cfg.Float(property) / math.Exp2(float64(p.Width()-bits))
		if hi > lo {
			v = (v - lo) / (hi - lo)
		}
		c := Ramp(v)
		cfg.Style[pipeline.StyleBackground] = c.Hex()
		cfg.Style[pipeline.StyleColor] = TextFor(c)
	}
}

// TextFor picks black or white text for a background by YIQ brightness.
func TextFor(bg colorful.Color) string {
	r, g, b := bg.RGB255()
	yiq := (int(r)*299 + int(g)*587 + int(b)*114) / 1000
	if yiq > 125 {
		return black
	}
	return white
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ────────────────────────────────────────────────────────────
// Style parsing
// ────────────────────────────────────────────────────────────

// ParseColor reads the color forms leaves carry: "#rrggbb", "#rgb",
// "rgb(r,g,b)", "black" and "white".
func ParseColor(s string) (colorful.Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch {
	case s == "black":
		return colorful.Color{}, nil
	case s == "white":
		return colorful.Color{R: 1, G: 1, B: 1}, nil
	case strings.HasPrefix(s, "#"):
		c, err := colorful.Hex(s)
		if err != nil {
			return colorful.Color{}, fmt.Errorf("parse color %q: %w", s, err)
		}
		return c, nil
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		parts := strings.Split(s[4:len(s)-1], ",")
		if len(parts) != 3 {
			return colorful.Color{}, fmt.Errorf("parse color %q: want three components", s)
		}
		var ch [3]float64
		for i, part := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 0 || n > 255 {
				return colorful.Color{}, fmt.Errorf("parse color %q: bad component %q", s, part)
			}
			ch[i] = float64(n) / 255
		}
		return colorful.Color{R: ch[0], G: ch[1], B: ch[2]}, nil
	}
	return colorful.Color{}, fmt.Errorf("parse color %q: unsupported form", s)
}

// HexOf normalizes a style color to "#rrggbb", falling back to def.
func HexOf(s, def string) string {
	c, err := ParseColor(s)
	if err != nil {
		return def
	}
	return c.Hex()
}
