package analysis

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Mr-Dark-debug/hilbertmap/internal/database"
	"github.com/Mr-Dark-debug/hilbertmap/internal/prefix"
)

// Points are (days since the first import, prefix count).
func TestLinearRegression(t *testing.T) {
	tests := []struct {
		name                       string
		points                     []dataPoint
		slope, intercept, rSquared float64
	}{
		{
			name:      "weekly feed gaining 40 prefixes",
			points:    []dataPoint{{0, 1000}, {7, 1040}, {14, 1080}, {21, 1120}},
			slope:     40.0 / 7,
			intercept: 1000,
			rSquared:  1,
		},
		{
			name:      "flat feed",
			points:    []dataPoint{{0, 800}, {1, 800}, {3, 800}, {10, 800}},
			slope:     0,
			intercept: 800,
			rSquared:  1,
		},
		{
			name:      "imports on the same day",
			points:    []dataPoint{{0, 10}, {0, 20}},
			slope:     0,
			intercept: 15,
			rSquared:  0,
		},
		{
			name:   "single import",
			points: []dataPoint{{0, 500}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slope, intercept, rSquared := linearRegression(tt.points)
			if math.Abs(slope-tt.slope) > 0.001 {
				t.Errorf("slope = %.3f, want %.3f", slope, tt.slope)
			}
			if math.Abs(intercept-tt.intercept) > 0.001 {
				t.Errorf("intercept = %.3f, want %.3f", intercept, tt.intercept)
			}
			if math.Abs(rSquared-tt.rSquared) > 0.001 {
				t.Errorf("R² = %.3f, want %.3f", rSquared, tt.rSquared)
			}
		})
	}
}

func TestLinearRegressionDailyChurn(t *testing.T) {
	// Roughly ten new prefixes a day with withdrawals mixed in.
	points := []dataPoint{{0, 500}, {1, 512}, {2, 519}, {3, 531}, {4, 540}}

	slope, _, rSquared := linearRegression(points)
	if slope < 9.5 || slope > 10.5 {
		t.Errorf("slope = %.3f, want about 9.9", slope)
	}
	if rSquared < 0.99 {
		t.Errorf("R² = %.3f, want > 0.99", rSquared)
	}
}

func newTestStore(t *testing.T) *database.DBService {
	t.Helper()
	store, err := database.NewDBService(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func addSet(t *testing.T, store *database.DBService, set *database.PrefixSet, prefixes ...string) {
	t.Helper()
	if err := store.CreateSet(set); err != nil {
		t.Fatalf("creating set: %v", err)
	}
	ps := make([]prefix.Prefix, len(prefixes))
	for i, s := range prefixes {
		ps[i] = prefix.MustParse(s)
	}
	if _, err := store.InsertPrefixes(set.ID, ps); err != nil {
		t.Fatalf("inserting prefixes: %v", err)
	}
}

func TestDetectHotspots(t *testing.T) {
	store := newTestStore(t)
	prefixes := []string{"10.0.0.0/8"}
	for i := 20; i < 30; i++ {
		prefixes = append(prefixes, fmt.Sprintf("%d.0.0.0/24", i))
	}
	addSet(t, store, &database.PrefixSet{ID: "s", Name: "s"}, prefixes...)

	hs, err := NewAnalyzer(store).DetectHotspots("s", 4, HotspotBitsV4)
	if err != nil {
		t.Fatalf("DetectHotspots: %v", err)
	}
	if len(hs) != 1 {
		t.Fatalf("expected 1 hotspot, got %d: %+v", len(hs), hs)
	}
	if hs[0].Block != "10.0.0.0/8" || hs[0].Severity != "high" || hs[0].Coverage != 1 {
		t.Errorf("unexpected hotspot %+v", hs[0])
	}
}

func TestDetectHotspotsUniform(t *testing.T) {
	hs := hotspots([]prefix.Prefix{
		prefix.MustParse("10.0.0.0/8"),
		prefix.MustParse("11.0.0.0/8"),
	}, HotspotBitsV4)
	if hs != nil {
		t.Errorf("expected no hotspots for uniform coverage, got %+v", hs)
	}
}

func TestLengths(t *testing.T) {
	ls := lengths([]prefix.Prefix{
		prefix.MustParse("10.0.0.0/8"),
		prefix.MustParse("11.0.0.0/24"),
		prefix.MustParse("12.0.0.0/24"),
		prefix.MustParse("2001:db8::/32"),
	})
	want := []LengthShare{
		{Family: 4, Bits: 8, Count: 1, Percentage: 33.33},
		{Family: 4, Bits: 24, Count: 2, Percentage: 66.67},
		{Family: 6, Bits: 32, Count: 1, Percentage: 100},
	}
	if len(ls) != len(want) {
		t.Fatalf("expected %d shares, got %+v", len(want), ls)
	}
	for i := range want {
		if ls[i] != want[i] {
			t.Errorf("share %d: expected %+v, got %+v", i, want[i], ls[i])
		}
	}
}

func TestAnalyzeGrowth(t *testing.T) {
	store := newTestStore(t)
	day := int64(24 * time.Hour)
	base := int64(1_700_000_000) * int64(time.Second)
	addSet(t, store, &database.PrefixSet{ID: "d0", Source: "ripe", CreatedAt: base},
		"10.0.0.0/8", "11.0.0.0/8")
	addSet(t, store, &database.PrefixSet{ID: "d1", Source: "ripe", CreatedAt: base + day},
		"10.0.0.0/8", "11.0.0.0/8", "12.0.0.0/8", "13.0.0.0/8")
	addSet(t, store, &database.PrefixSet{ID: "d2", Source: "ripe", CreatedAt: base + 2*day},
		"10.0.0.0/8", "11.0.0.0/8", "12.0.0.0/8", "13.0.0.0/8", "14.0.0.0/8", "15.0.0.0/8")
	addSet(t, store, &database.PrefixSet{ID: "other", Source: "text"}, "10.0.0.0/8")

	g, err := NewAnalyzer(store).AnalyzeGrowth("ripe")
	if err != nil {
		t.Fatalf("AnalyzeGrowth: %v", err)
	}
	if g.Sets != 3 {
		t.Errorf("expected 3 sets, got %d", g.Sets)
	}
	if math.Abs(g.Slope-2) > 0.001 || math.Abs(g.RSquared-1) > 0.001 {
		t.Errorf("expected slope 2 and R² 1, got %+v", g)
	}
	if g.Prediction30Day != 66 {
		t.Errorf("expected 30-day prediction 66, got %d", g.Prediction30Day)
	}
	if !g.IsGrowing {
		t.Error("expected growth to be flagged")
	}
}

func TestDiffSets(t *testing.T) {
	store := newTestStore(t)
	addSet(t, store, &database.PrefixSet{ID: "a"}, "10.0.0.0/8", "192.168.0.0/16", "2001:db8::/32")
	addSet(t, store, &database.PrefixSet{ID: "b"}, "10.0.0.0/8", "172.16.0.0/12", "2001:db8::/32")

	d, err := NewAnalyzer(store).DiffSets("a", "b")
	if err != nil {
		t.Fatalf("DiffSets: %v", err)
	}
	if len(d.Added) != 1 || d.Added[0] != "172.16.0.0/12" {
		t.Errorf("unexpected added %v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0] != "192.168.0.0/16" {
		t.Errorf("unexpected removed %v", d.Removed)
	}
	if d.Common != 2 {
		t.Errorf("expected 2 common prefixes, got %d", d.Common)
	}
}

func TestFullAnalysisAndFormat(t *testing.T) {
	store := newTestStore(t)
	addSet(t, store, &database.PrefixSet{ID: "s", Name: "AS64500"}, "10.0.0.0/8", "2001:db8::/32")

	a := NewAnalyzer(store)
	report, err := a.FullAnalysis("s")
	if err != nil {
		t.Fatalf("FullAnalysis: %v", err)
	}
	if report.Stats.V4Prefixes != 1 || report.Stats.V6Prefixes != 1 {
		t.Errorf("unexpected stats %+v", report.Stats)
	}
	if len(report.Lengths) != 2 {
		t.Errorf("expected 2 length shares, got %+v", report.Lengths)
	}

	md := a.FormatReport(report)
	for _, want := range []string{"# Prefix Set Report", "`s` (AS64500)", "| IPv4 | /8 | 1 | 100.00% |"} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q:\n%s", want, md)
		}
	}

	if _, err := a.FullAnalysis("missing"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
