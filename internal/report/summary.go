// Package report renders the results of a training run: a console summary
// plus optional CSV, workbook and PDF files under the report directory.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/workertiers/internal/cluster"
	"github.com/Iron-Ham/workertiers/internal/features"
	"github.com/Iron-Ham/workertiers/internal/util"
)

// TierStat summarizes one tier of a labeling.
type TierStat struct {
	Label   string
	Cluster int
	Score   float64
	Count   int
	Percent float64
	// Means is the raw feature mean of the tier's cluster in
	// features.FeatureNames order.
	Means []float64
}

// Summary is the data behind the console summary.
type Summary struct {
	Workers int
	// Tiers is ordered from the highest score down.
	Tiers []TierStat
	Files []string
}

// Summarize builds a Summary from a labeling. files lists the artifacts the
// run produced.
func Summarize(l cluster.Labeling, files []string) Summary {
	counts := make(map[int]int, len(l.Mapping))
	for _, w := range l.Workers {
		counts[w.Cluster]++
	}

	tiers := make([]TierStat, 0, len(l.Mapping))
	for c, label := range l.Mapping {
		stat := TierStat{
			Label:   label,
			Cluster: c,
			Score:   l.Scores[c],
			Count:   counts[c],
		}
		if len(l.Workers) > 0 {
			stat.Percent = float64(stat.Count) / float64(len(l.Workers)) * 100
		}
		if c < len(l.Means) {
			stat.Means = l.Means[c]
		}
		tiers = append(tiers, stat)
	}
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].Score != tiers[j].Score {
			return tiers[i].Score > tiers[j].Score
		}
		return tiers[i].Cluster < tiers[j].Cluster
	})

	return Summary{Workers: len(l.Workers), Tiers: tiers, Files: files}
}

// ByCluster returns the tiers ordered by cluster id.
func (s Summary) ByCluster() []TierStat {
	out := make([]TierStat, len(s.Tiers))
	copy(out, s.Tiers)
	sort.Slice(out, func(i, j int) bool { return out[i].Cluster < out[j].Cluster })
	return out
}

const labelWidth = 22

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	topStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	middleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	bottomStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171"))
)

// Render formats the summary. styled adds terminal colors.
func (s Summary) Render(styled bool) string {
	heading := func(text string) string {
		if styled {
			return headingStyle.Render(text)
		}
		return text
	}
	muted := func(text string) string {
		if styled {
			return mutedStyle.Render(text)
		}
		return text
	}
	rank := make(map[int]int, len(s.Tiers))
	for i, t := range s.Tiers {
		rank[t.Cluster] = i
	}
	tier := func(t TierStat) string {
		if !styled {
			return t.Label
		}
		switch r := rank[t.Cluster]; {
		case r == 0:
			return topStyle.Render(t.Label)
		case r == len(s.Tiers)-1:
			return bottomStyle.Render(t.Label)
		default:
			return middleStyle.Render(t.Label)
		}
	}

	var b strings.Builder
	b.WriteString(heading("Training Results Summary") + "\n")
	fmt.Fprintf(&b, "  Workers analyzed: %d\n", s.Workers)

	b.WriteString("\n" + heading("Performance Distribution") + "\n")
	for _, t := range s.Tiers {
		fmt.Fprintf(&b, "  %s %3d workers %s\n",
			util.PadRight(tier(t), labelWidth), t.Count, muted(fmt.Sprintf("(%.1f%%)", t.Percent)))
	}

	b.WriteString("\n" + heading("Cluster to Performance Mapping") + "\n")
	for _, t := range s.ByCluster() {
		fmt.Fprintf(&b, "  Cluster %d: %s %s\n",
			t.Cluster, util.PadRight(tier(t), labelWidth), muted(fmt.Sprintf("score %.2f", t.Score)))
	}

	b.WriteString("\n" + heading("Average Features by Performance Level") + "\n")
	names := features.FeatureNames()
	for _, t := range s.Tiers {
		fmt.Fprintf(&b, "  %s\n", tier(t))
		for i, name := range names {
			if i >= len(t.Means) {
				break
			}
			fmt.Fprintf(&b, "    %s %8.2f\n", util.PadRight(name, labelWidth-2), t.Means[i])
		}
	}

	if len(s.Files) > 0 {
		b.WriteString("\n" + heading("Files Created") + "\n")
		for _, f := range s.Files {
			fmt.Fprintf(&b, "  - %s\n", f)
		}
	}
	return b.String()
}

// WriteSummary renders s to w, styled when w is a terminal.
func WriteSummary(w io.Writer, s Summary) error {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	_, err := io.WriteString(w, s.Render(styled))
	return err
}
