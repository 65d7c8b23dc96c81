package compiler

import (
	"fmt"
	"strings"

	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/types"
)

// EdgeKind classifies how an edge routes control. Classification follows a
// strict precedence: decision beats loop beats retry beats fork beats join
// beats direct, so a handle carrying several markers routes by the strongest
// one.
type EdgeKind int

const (
	EdgeDirect EdgeKind = iota
	EdgeDecision
	EdgeLoop
	EdgeRetry
	EdgeFork
	EdgeJoin
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeDecision:
		return "decision"
	case EdgeLoop:
		return "loop"
	case EdgeRetry:
		return "retry"
	case EdgeFork:
		return "fork"
	case EdgeJoin:
		return "join"
	default:
		return "direct"
	}
}

// ClassifyEdge determines the routing kind of one edge given the fork and
// join node sets of the graph.
func ClassifyEdge(e graph.Edge, forks, joins map[string]struct{}) EdgeKind {
	switch {
	case strings.Contains(e.SourceHandle, "decision"):
		return EdgeDecision
	case strings.Contains(e.SourceHandle, "loop"):
		return EdgeLoop
	case strings.Contains(e.SourceHandle, "retry"):
		return EdgeRetry
	case hasKeyIn(forks, e.Source) || strings.Contains(e.SourceHandle, "fork"):
		return EdgeFork
	case hasKeyIn(joins, e.Target) || strings.Contains(e.TargetHandle, "join"):
		return EdgeJoin
	default:
		return EdgeDirect
	}
}

func hasKeyIn(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// DecisionBranch extracts the branch key a decision edge fires on, stripping
// the "decision." handle prefix.
func DecisionBranch(e graph.Edge) string {
	branch := strings.TrimPrefix(e.SourceHandle, "decision.")
	if branch == e.SourceHandle {
		branch = strings.TrimPrefix(branch, "decision-")
	}
	if branch == "" || strings.Contains(branch, "decision") {
		return "default"
	}
	return branch
}

// RoutePlan is the compiled routing of one node's outgoing edges.
type RoutePlan struct {
	NodeID string
	Kind   EdgeKind

	// Direct and join routing.
	Direct string

	// Decision routing: branch key -> target.
	Branches map[string]string

	// Loop routing.
	LoopContinue string
	LoopExit     string

	// Retry routing.
	RetryTarget   string
	ProceedTarget string

	// Fork routing: branch heads in edge declaration order, plus the join
	// node the branches converge on (empty when they never converge).
	ForkTargets []string
	JoinNode    string
}

// Next resolves the follow-up node for a completed execution of this plan's
// node, given the routing signals left in state. An empty result halts the
// flow.
func (p *RoutePlan) Next(s types.State) string {
	switch p.Kind {
	case EdgeDecision:
		branch := s.GetString(types.KeyDecision)
		if target, ok := p.Branches[branch]; ok {
			return target
		}
		return p.Branches["default"]
	case EdgeLoop:
		scope := s.Scope(types.KeyLoopState, p.NodeID)
		if complete, _ := scope["complete"].(bool); complete {
			return p.LoopExit
		}
		return p.LoopContinue
	case EdgeRetry:
		scope := s.Scope(types.KeyRetryState, p.NodeID)
		if should, _ := scope["should_retry"].(bool); should {
			return p.RetryTarget
		}
		return p.ProceedTarget
	default:
		return p.Direct
	}
}

// BuildRoutes compiles every node's outgoing edges into a RoutePlan. It is a
// pure function of the schema.
func BuildRoutes(schema *graph.Schema) (map[string]*RoutePlan, error) {
	forks := schema.NodesOfType(graph.NodeParallelFork)
	joins := schema.NodesOfType(graph.NodeParallelJoin)

	plans := make(map[string]*RoutePlan, len(schema.Nodes))
	for _, n := range schema.Nodes {
		plan, err := buildPlan(schema, n.ID, forks, joins)
		if err != nil {
			return nil, err
		}
		plans[n.ID] = plan
	}
	return plans, nil
}

func buildPlan(schema *graph.Schema, nodeID string, forks, joins map[string]struct{}) (*RoutePlan, error) {
	plan := &RoutePlan{NodeID: nodeID}
	for _, e := range schema.OutgoingEdges(nodeID) {
		kind := ClassifyEdge(e, forks, joins)
		if kind > plan.Kind {
			plan.Kind = kind
		}

		switch kind {
		case EdgeDecision:
			if plan.Branches == nil {
				plan.Branches = make(map[string]string)
			}
			branch := DecisionBranch(e)
			if prev, dup := plan.Branches[branch]; dup && prev != e.Target {
				return nil, types.NewError(types.ErrEdgeUnroutable,
					fmt.Sprintf("node %q has two targets for decision branch %q", nodeID, branch)).
					WithNodeID(nodeID)
			}
			plan.Branches[branch] = e.Target
		case EdgeLoop:
			switch {
			case strings.Contains(e.SourceHandle, "continue"):
				plan.LoopContinue = e.Target
			case strings.Contains(e.SourceHandle, "exit"):
				plan.LoopExit = e.Target
			default:
				return nil, types.NewError(types.ErrEdgeUnroutable,
					fmt.Sprintf("loop edge %q has neither continue nor exit marker", e.ID)).
					WithNodeID(nodeID)
			}
		case EdgeRetry:
			if strings.Contains(e.SourceHandle, "should_retry") {
				plan.RetryTarget = e.Target
			} else {
				plan.ProceedTarget = e.Target
			}
		case EdgeFork:
			plan.ForkTargets = append(plan.ForkTargets, e.Target)
		default:
			// Join edges route like direct edges; result collection happens
			// at the join node itself.
			if plan.Direct == "" {
				plan.Direct = e.Target
			}
		}
	}

	if plan.Kind == EdgeFork {
		join, err := findJoin(schema, plan.ForkTargets, joins)
		if err != nil {
			return nil, err
		}
		plan.JoinNode = join
	}
	return plan, nil
}

// findJoin walks forward from each fork branch head and returns the join
// node the branches converge on. Branches reaching different join nodes are
// unroutable.
func findJoin(schema *graph.Schema, heads []string, joins map[string]struct{}) (string, error) {
	common := ""
	for _, head := range heads {
		found := firstJoinFrom(schema, head, joins)
		if found == "" {
			continue
		}
		if common == "" {
			common = found
		} else if common != found {
			return "", types.NewError(types.ErrEdgeUnroutable,
				fmt.Sprintf("fork branches converge on different join nodes %q and %q", common, found))
		}
	}
	return common, nil
}

func firstJoinFrom(schema *graph.Schema, start string, joins map[string]struct{}) string {
	visited := map[string]struct{}{}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		if _, ok := joins[id]; ok {
			return id
		}
		for _, e := range schema.OutgoingEdges(id) {
			queue = append(queue, e.Target)
		}
	}
	return ""
}
