// Package analysis provides lightweight, deterministic statistics over
// stored prefix sets.
//
// Key capabilities:
//   - Coverage hotspot detection via Z-score analysis
//   - Prefix length distribution per family
//   - Set growth trend analysis via linear regression
//   - Set-to-set prefix diffs
package analysis

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/density"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
	"github.com/Mr-Dark-debug/hilbertmap/pkg/timeutil"
)

// Block lengths hotspots are grouped at.
const (
	HotspotBitsV4 = 8
	HotspotBitsV6 = 32
)

// Analyzer computes set statistics.
type Analyzer struct {
	store database.Store
}

// NewAnalyzer creates a new analysis engine backed by the given store.
func NewAnalyzer(store database.Store) *Analyzer {
	return &Analyzer{store: store}
}

// ============================================================
// Coverage Hotspot Detection
// ============================================================

// Hotspot is a block whose coverage stands out from its family.
type Hotspot struct {
	Block    string  `json:"block"`
	Prefixes int     `json:"prefixes"`
	Coverage float64 `json:"coverage"`
	ZScore   float64 `json:"z_score"`
	Severity string  `json:"severity"` // "low", "medium", "high"
}

// DetectHotspots groups a set's prefixes into blocks of the given length
// and reports the blocks whose coverage Z-score exceeds 1.5. A prefix
// shorter than the block length counts toward its first block only.
//
// A Z-score > 2.0 is "medium" severity, > 3.0 is "high".
func (a *Analyzer) DetectHotspots(setID string, family, bits int) ([]Hotspot, error) {
	prefixes, err := a.store.QueryPrefixes(setID, family)
	if err != nil {
		return nil, fmt.Errorf("querying prefixes for hotspot analysis: %w", err)
	}
	return hotspots(prefixes, bits), nil
}

func hotspots(prefixes []prefix.Prefix, bits int) []Hotspot {
	counts := make(map[prefix.Prefix]int)
	for _, p := range prefixes {
		counts[prefix.FromAddr(p.Addr(), bits)]++
	}
	if len(counts) < 2 {
		// Not enough blocks for a meaningful Z-score
		return nil
	}

	ix := density.Build(prefixes)
	blocks := make([]prefix.Prefix, 0, len(counts))
	for b := range counts {
		blocks = append(blocks, b)
	}
	slices.SortFunc(blocks, prefix.Prefix.Compare)

	cover := make([]float64, len(blocks))
	var sum, sumSq float64
	for i, b := range blocks {
		cover[i] = ix.Coverage(b)
		sum += cover[i]
		sumSq += cover[i] * cover[i]
	}

	n := float64(len(blocks))
	mean := sum / n
	stddev := math.Sqrt(math.Max(sumSq/n-mean*mean, 0))
	if stddev == 0 {
		// Uniform coverage, no hotspots
		return nil
	}

	var out []Hotspot
	for i, b := range blocks {
		z := (cover[i] - mean) / stddev
		if z <= 1.5 {
			continue
		}
		severity := "low"
		if z > 3.0 {
			severity = "high"
		} else if z > 2.0 {
			severity = "medium"
		}
		out = append(out, Hotspot{
			Block:    b.String(),
			Prefixes: counts[b],
			Coverage: cover[i],
			ZScore:   math.Round(z*100) / 100,
			Severity: severity,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ZScore > out[j].ZScore
	})
	return out
}

// ============================================================
// Length Distribution
// ============================================================

// LengthShare counts the prefixes of one family and length.
type LengthShare struct {
	Family     int     `json:"family"`
	Bits       int     `json:"bits"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"` // of the family total
}

// LengthDistribution tallies prefix lengths, ordered by family then length.
func (a *Analyzer) LengthDistribution(setID string) ([]LengthShare, error) {
	prefixes, err := a.store.QueryPrefixes(setID, 0)
	if err != nil {
		return nil, fmt.Errorf("querying prefixes for length distribution: %w", err)
	}
	return lengths(prefixes), nil
}

func lengths(prefixes []prefix.Prefix) []LengthShare {
	type key struct{ family, bits int }
	counts := make(map[key]int)
	totals := make(map[int]int)
	for _, p := range prefixes {
		counts[key{p.Family(), p.Bits()}]++
		totals[p.Family()]++
	}

	out := make([]LengthShare, 0, len(counts))
	for k, c := range counts {
		out = append(out, LengthShare{
			Family:     k.family,
			Bits:       k.bits,
			Count:      c,
			Percentage: math.Round(float64(c)/float64(totals[k.family])*10000) / 100,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Family != out[j].Family {
			return out[i].Family < out[j].Family
		}
		return out[i].Bits < out[j].Bits
	})
	return out
}

// ============================================================
// Growth Analysis
// ============================================================

// GrowthReport fits prefix counts of same-source sets against their
// creation time.
type GrowthReport struct {
	Source          string  `json:"source"`
	Sets            int     `json:"sets"`
	Slope           float64 `json:"slope"`     // Prefixes per day
	Intercept       float64 `json:"intercept"` // Prefix count at the first set
	RSquared        float64 `json:"r_squared"` // Goodness of fit
	Prediction30Day int     `json:"prediction_30_day"`
	IsGrowing       bool    `json:"is_growing"`
}

// dataPoint is a single observation for regression analysis.
type dataPoint struct {
	x float64
	y float64
}

// AnalyzeGrowth performs linear regression on the prefix counts of every
// set imported from source, in creation order.
//
// This answers: "Is this feed announcing more space over time?"
func (a *Analyzer) AnalyzeGrowth(source string) (*GrowthReport, error) {
	sets, err := a.store.ListSets(database.SetFilter{Source: &source, Limit: 1000})
	if err != nil {
		return nil, fmt.Errorf("listing sets for growth analysis: %w", err)
	}

	report := &GrowthReport{Source: source, Sets: len(sets)}
	if len(sets) < 2 {
		return report, nil
	}

	sort.Slice(sets, func(i, j int) bool {
		return sets[i].CreatedAt < sets[j].CreatedAt
	})

	base := sets[0].CreatedAt
	points := make([]dataPoint, len(sets))
	for i, s := range sets {
		points[i] = dataPoint{
			x: float64(s.CreatedAt-base) / float64(24*time.Hour),
			y: float64(s.PrefixCount),
		}
	}

	slope, intercept, rSquared := linearRegression(points)
	last := points[len(points)-1].x
	prediction := slope*(last+30) + intercept

	report.Slope = math.Round(slope*1000) / 1000
	report.Intercept = math.Round(intercept*100) / 100
	report.RSquared = math.Round(rSquared*1000) / 1000
	report.Prediction30Day = int(math.Max(0, math.Round(prediction)))
	report.IsGrowing = slope > 0 && rSquared > 0.7
	return report, nil
}

// linearRegression computes ordinary least squares regression.
// Returns slope (m), intercept (b), and R-squared goodness of fit.
func linearRegression(points []dataPoint) (slope, intercept, rSquared float64) {
	n := float64(len(points))
	if n < 2 {
		return 0, 0, 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range points {
		sumX += p.x
		sumY += p.y
		sumXY += p.x * p.y
		sumX2 += p.x * p.x
	}

	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}

	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	// R-squared
	meanY := sumY / n
	var ssRes, ssTot float64
	for _, p := range points {
		predicted := slope*p.x + intercept
		ssRes += (p.y - predicted) * (p.y - predicted)
		ssTot += (p.y - meanY) * (p.y - meanY)
	}

	if ssTot == 0 {
		rSquared = 1.0
	} else {
		rSquared = 1 - ssRes/ssTot
	}

	return slope, intercept, rSquared
}

// ============================================================
// Set Diff
// ============================================================

// Diff lists the prefixes that differ between two sets.
type Diff struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Common  int      `json:"common"`
}

// DiffSets compares the prefixes of from and to. Output is in address order.
func (a *Analyzer) DiffSets(from, to string) (*Diff, error) {
	old, err := a.store.QueryPrefixes(from, 0)
	if err != nil {
		return nil, fmt.Errorf("querying prefixes of %s: %w", from, err)
	}
	cur, err := a.store.QueryPrefixes(to, 0)
	if err != nil {
		return nil, fmt.Errorf("querying prefixes of %s: %w", to, err)
	}
	d := diff(old, cur)
	d.From, d.To = from, to
	return d, nil
}

func diff(old, cur []prefix.Prefix) *Diff {
	slices.SortFunc(old, prefix.Prefix.Compare)
	slices.SortFunc(cur, prefix.Prefix.Compare)

	d := &Diff{Added: []string{}, Removed: []string{}}
	i, j := 0, 0
	for i < len(old) || j < len(cur) {
		switch {
		case j == len(cur) || (i < len(old) && old[i].Compare(cur[j]) < 0):
			d.Removed = append(d.Removed, old[i].String())
			i++
		case i == len(old) || old[i].Compare(cur[j]) > 0:
			d.Added = append(d.Added, cur[j].String())
			j++
		default:
			d.Common++
			i++
			j++
		}
	}
	return d
}

// ============================================================
// Full Analysis Report
// ============================================================

// Report is the complete output of `hilbertmap analyze`.
type Report struct {
	SetID       string             `json:"set_id"`
	Name        string             `json:"name"`
	Source      string             `json:"source"`
	CreatedAt   string             `json:"created_at"`
	GeneratedAt string             `json:"generated_at"`
	Stats       *database.SetStats `json:"stats"`
	HotspotsV4  []Hotspot          `json:"hotspots_v4"`
	HotspotsV6  []Hotspot          `json:"hotspots_v6"`
	Lengths     []LengthShare      `json:"lengths"`
	Growth      *GrowthReport      `json:"growth"`
	Warnings    []string           `json:"warnings"`
}

// FullAnalysis runs all analysis passes over one set.
func (a *Analyzer) FullAnalysis(setID string) (*Report, error) {
	set, err := a.store.GetSet(setID)
	if err != nil {
		return nil, fmt.Errorf("loading set: %w", err)
	}
	stats, err := a.store.GetSetStats(setID)
	if err != nil {
		return nil, fmt.Errorf("gathering set stats: %w", err)
	}

	report := &Report{
		SetID:       set.ID,
		Name:        set.Name,
		Source:      set.Source,
		CreatedAt:   timeutil.FormatTimestampFull(set.CreatedAt),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Stats:       stats,
	}

	if report.HotspotsV4, err = a.DetectHotspots(setID, 4, HotspotBitsV4); err != nil {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("IPv4 hotspot analysis failed: %v", err))
	}
	if report.HotspotsV6, err = a.DetectHotspots(setID, 6, HotspotBitsV6); err != nil {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("IPv6 hotspot analysis failed: %v", err))
	}
	if report.Lengths, err = a.LengthDistribution(setID); err != nil {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("Length distribution failed: %v", err))
	}
	if report.Growth, err = a.AnalyzeGrowth(set.Source); err != nil {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("Growth analysis failed: %v", err))
	}

	if g := report.Growth; g != nil && g.IsGrowing {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%s sets grow by %.1f prefixes per day (R²=%.3f) across %d imports.",
				g.Source, g.Slope, g.RSquared, g.Sets))
	}
	for _, h := range append(slices.Clone(report.HotspotsV4), report.HotspotsV6...) {
		if h.Severity == "high" {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%s is %.1f%% covered (Z-score %.2f).", h.Block, h.Coverage*100, h.ZScore))
		}
	}

	return report, nil
}

// FormatReport generates a human-readable markdown report.
func (a *Analyzer) FormatReport(report *Report) string {
	var b strings.Builder

	b.WriteString("# Prefix Set Report\n\n")
	fmt.Fprintf(&b, "**Set:** `%s` (%s)\n", report.SetID, report.Name)
	fmt.Fprintf(&b, "**Source:** %s, imported %s\n", report.Source, report.CreatedAt)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", report.GeneratedAt)

	// Stats
	if s := report.Stats; s != nil {
		b.WriteString("## Summary\n\n")
		b.WriteString("| Family | Prefixes | Shortest | Longest |\n")
		b.WriteString("|--------|----------|----------|---------|\n")
		fmt.Fprintf(&b, "| IPv4 | %d | /%d | /%d |\n", s.V4Prefixes, s.V4MinBits, s.V4MaxBits)
		fmt.Fprintf(&b, "| IPv6 | %d | /%d | /%d |\n\n", s.V6Prefixes, s.V6MinBits, s.V6MaxBits)
	}

	writeHotspots(&b, fmt.Sprintf("IPv4 Hotspots (/%d)", HotspotBitsV4), report.HotspotsV4)
	writeHotspots(&b, fmt.Sprintf("IPv6 Hotspots (/%d)", HotspotBitsV6), report.HotspotsV6)

	// Lengths
	if len(report.Lengths) > 0 {
		b.WriteString("## Prefix Lengths\n\n")
		b.WriteString("| Family | Length | Count | % |\n")
		b.WriteString("|--------|--------|-------|---|\n")
		for _, l := range report.Lengths {
			fmt.Fprintf(&b, "| IPv%d | /%d | %d | %.2f%% |\n", l.Family, l.Bits, l.Count, l.Percentage)
		}
		b.WriteString("\n")
	}

	// Growth
	if g := report.Growth; g != nil && g.Sets >= 2 {
		b.WriteString("## Growth\n\n")
		fmt.Fprintf(&b, "- **Sets from %s:** %d\n", g.Source, g.Sets)
		fmt.Fprintf(&b, "- **Growth Rate:** %.2f prefixes/day\n", g.Slope)
		fmt.Fprintf(&b, "- **R² Fit:** %.3f\n", g.RSquared)
		fmt.Fprintf(&b, "- **30-day Prediction:** %d prefixes\n\n", g.Prediction30Day)
	}

	// Warnings
	if len(report.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}

func writeHotspots(b *strings.Builder, title string, hs []Hotspot) {
	if len(hs) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	b.WriteString("| Block | Prefixes | Coverage | Z-Score | Severity |\n")
	b.WriteString("|-------|----------|----------|---------|----------|\n")
	for _, h := range hs {
		fmt.Fprintf(b, "| %s | %d | %.3f%% | %.2f | %s |\n",
			h.Block, h.Prefixes, h.Coverage*100, h.ZScore, h.Severity)
	}
	b.WriteString("\n")
}
