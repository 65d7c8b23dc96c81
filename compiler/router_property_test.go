package compiler

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/flowforge/flowforge/graph"
)

// The classifier must honor the marker precedence no matter what else a
// handle carries.
func TestClassifyEdgePrecedenceProperty(t *testing.T) {
	markers := []string{"decision", "loop", "retry", "fork", "join", "continue", "exit", ""}

	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(markers), 0, 4).Draw(t, "parts")
		sourceHandle := strings.Join(parts, "-")
		targetHandle := rapid.SampledFrom([]string{"", "join-in", "in"}).Draw(t, "targetHandle")
		sourceIsFork := rapid.Bool().Draw(t, "sourceIsFork")
		targetIsJoin := rapid.Bool().Draw(t, "targetIsJoin")

		e := graph.Edge{
			Source:       "src",
			Target:       "dst",
			SourceHandle: sourceHandle,
			TargetHandle: targetHandle,
		}
		forks := map[string]struct{}{}
		if sourceIsFork {
			forks["src"] = struct{}{}
		}
		joins := map[string]struct{}{}
		if targetIsJoin {
			joins["dst"] = struct{}{}
		}

		got := ClassifyEdge(e, forks, joins)

		var want EdgeKind
		switch {
		case strings.Contains(sourceHandle, "decision"):
			want = EdgeDecision
		case strings.Contains(sourceHandle, "loop"):
			want = EdgeLoop
		case strings.Contains(sourceHandle, "retry"):
			want = EdgeRetry
		case sourceIsFork || strings.Contains(sourceHandle, "fork"):
			want = EdgeFork
		case targetIsJoin || strings.Contains(targetHandle, "join"):
			want = EdgeJoin
		default:
			want = EdgeDirect
		}
		if got != want {
			t.Fatalf("handle %q (fork=%v join=%v): got %v want %v",
				sourceHandle, sourceIsFork, targetIsJoin, got, want)
		}
	})
}
