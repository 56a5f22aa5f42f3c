// Package export renders a timeline to a video file. It builds a typed
// filter graph from a snapshot, serializes it to ffmpeg filter_complex
// syntax, and drives the encode through staged asset files while tracking
// progress in the export record store.
package export

import (
	"fmt"
	"strconv"
	"strings"
)

// Chain is one semicolon-delimited segment of a filter graph: input
// labels, a comma-joined run of filter steps, output labels.
type Chain struct {
	Inputs  []string
	Steps   []string
	Outputs []string
}

// Graph is an ordered list of chains. Chains may only consume source
// streams ("0:v", "1:a") or labels produced by an earlier chain.
type Graph struct {
	Chains []Chain
}

func (g *Graph) Add(c Chain) {
	g.Chains = append(g.Chains, c)
}

// isSourceStream reports whether a label references an input file stream
// rather than a produced intermediate.
func isSourceStream(label string) bool {
	return strings.Contains(label, ":")
}

// Validate checks the graph is complete: every consumed intermediate label
// was produced by an earlier chain, no label or source stream is consumed
// twice (ffmpeg requires a split for fan-out, source streams included),
// no label is produced twice, and the final labels are produced but left
// unconsumed for -map.
func (g *Graph) Validate(finalLabels ...string) error {
	produced := make(map[string]bool)
	consumed := make(map[string]bool)

	for _, c := range g.Chains {
		if len(c.Inputs) == 0 || len(c.Outputs) == 0 {
			return fmt.Errorf("chain %q has no inputs or no outputs", strings.Join(c.Steps, ","))
		}
		for _, in := range c.Inputs {
			if consumed[in] {
				return fmt.Errorf("label %q consumed twice", in)
			}
			consumed[in] = true
			if isSourceStream(in) {
				continue
			}
			if !produced[in] {
				return fmt.Errorf("label %q consumed before being produced", in)
			}
		}
		for _, out := range c.Outputs {
			if produced[out] {
				return fmt.Errorf("label %q produced twice", out)
			}
			produced[out] = true
		}
	}

	final := make(map[string]bool, len(finalLabels))
	for _, label := range finalLabels {
		final[label] = true
		if !produced[label] {
			return fmt.Errorf("final label %q never produced", label)
		}
		if consumed[label] {
			return fmt.Errorf("final label %q consumed inside the graph", label)
		}
	}
	for label := range produced {
		if !consumed[label] && !final[label] {
			return fmt.Errorf("label %q produced but never consumed", label)
		}
	}
	return nil
}

func (g *Graph) String() string {
	parts := make([]string, 0, len(g.Chains))
	for _, c := range g.Chains {
		var b strings.Builder
		for _, in := range c.Inputs {
			b.WriteString("[" + in + "]")
		}
		b.WriteString(strings.Join(c.Steps, ","))
		for _, out := range c.Outputs {
			b.WriteString("[" + out + "]")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ";")
}

// ffNum renders a float the way filter arguments expect: shortest exact
// decimal form, no exponent for the magnitudes a timeline produces.
func ffNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
