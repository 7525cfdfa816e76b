// Package graph builds the dependency DAG for a set of resource
// declarations. Nodes live in a flat indexed table and edges are index
// pairs, which keeps cycle detection and ordering simple and cheap.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"

	"github.com/cairnhq/cairn/internal/config"
)

// Node is a single resource in the graph.
type Node struct {
	Addr     string
	Type     string
	Name     string
	Provider string
}

// Graph is a directed acyclic graph of resources. An edge A->B means B must
// be resolved and applied before A.
type Graph struct {
	nodes []Node
	index map[string]int

	edges [][2]int // (dependent, dependency) index pairs

	deps       [][]int // per node: dependency indices
	dependents [][]int // per node: dependent indices

	order []int // topological order, dependencies first
}

// Build constructs the graph from a module's declarations. Dependency edges
// come from explicit depends_on plus a static scan of every attribute
// expression for references to other resources. Any reference to an
// undeclared node is an error here, never deferred to plan time.
func Build(mod *config.Module, knownProvider func(name string) bool) (*Graph, error) {
	g := &Graph{index: make(map[string]int)}

	for _, res := range mod.Resources {
		addr := res.Address()
		if _, dup := g.index[addr]; dup {
			return nil, &BuildError{Kind: DuplicateIdentifier, Addr: addr, Detail: "declared more than once"}
		}
		if knownProvider != nil && !knownProvider(res.Provider) {
			return nil, &BuildError{Kind: UnknownProviderType, Addr: addr, Detail: fmt.Sprintf("no provider registered for %q", res.Provider)}
		}
		g.index[addr] = len(g.nodes)
		g.nodes = append(g.nodes, Node{Addr: addr, Type: res.Type, Name: res.Name, Provider: res.Provider})
	}

	g.deps = make([][]int, len(g.nodes))
	g.dependents = make([][]int, len(g.nodes))

	for _, res := range mod.Resources {
		from := g.index[res.Address()]

		for _, dep := range res.DependsOn {
			to, ok := g.index[dep]
			if !ok {
				return nil, &BuildError{Kind: UnknownReference, Addr: res.Address(), Detail: fmt.Sprintf("depends_on references undeclared resource %q", dep)}
			}
			g.addEdge(from, to)
		}

		refs, err := scanReferences(res.Address(), mod, res.Expressions())
		if err != nil {
			return nil, err
		}
		for _, dep := range refs {
			g.addEdge(from, g.index[dep])
		}
	}

	// Output expressions may also reference resources; they must resolve.
	for _, out := range mod.Outputs {
		if _, err := scanReferences("output."+out.Name, mod, []hcl.Expression{out.Expr}); err != nil {
			return nil, err
		}
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order

	return g, nil
}

func (g *Graph) addEdge(from, to int) {
	if from == to {
		return
	}
	for _, d := range g.deps[from] {
		if d == to {
			return
		}
	}
	g.edges = append(g.edges, [2]int{from, to})
	g.deps[from] = append(g.deps[from], to)
	g.dependents[to] = append(g.dependents[to], from)
}

// scanReferences extracts the addresses of all declared resources referenced
// by the given expressions. var.* and local.* traversals are validated
// against the module but produce no edges.
func scanReferences(owner string, mod *config.Module, exprs []hcl.Expression) ([]string, error) {
	seen := make(map[string]bool)
	var refs []string

	for _, expr := range exprs {
		if expr == nil {
			continue
		}
		for _, trav := range expr.Variables() {
			root := trav.RootName()
			switch root {
			case "var":
				name, ok := traversalAttr(trav, 1)
				if !ok {
					return nil, &BuildError{Kind: MalformedExpression, Addr: owner, Detail: "var reference without a variable name"}
				}
				if _, declared := mod.Variables[name]; !declared {
					return nil, &BuildError{Kind: UnknownReference, Addr: owner, Detail: fmt.Sprintf("undeclared variable %q", name)}
				}
			case "local":
				name, ok := traversalAttr(trav, 1)
				if !ok {
					return nil, &BuildError{Kind: MalformedExpression, Addr: owner, Detail: "local reference without a name"}
				}
				if _, declared := mod.Locals[name]; !declared {
					return nil, &BuildError{Kind: UnknownReference, Addr: owner, Detail: fmt.Sprintf("undeclared local value %q", name)}
				}
			default:
				name, ok := traversalAttr(trav, 1)
				if !ok {
					return nil, &BuildError{Kind: MalformedExpression, Addr: owner, Detail: fmt.Sprintf("reference %q does not form a resource address", root)}
				}
				dep := fmt.Sprintf("%s.%s", root, name)
				if mod.ResourceByAddress(dep) == nil {
					return nil, &BuildError{Kind: UnknownReference, Addr: owner, Detail: fmt.Sprintf("reference to undeclared resource %q", dep)}
				}
				if !seen[dep] && dep != owner {
					seen[dep] = true
					refs = append(refs, dep)
				}
			}
		}
	}

	sort.Strings(refs)
	return refs, nil
}

func traversalAttr(trav hcl.Traversal, i int) (string, bool) {
	if len(trav) <= i {
		return "", false
	}
	step, ok := trav[i].(hcl.TraverseAttr)
	if !ok {
		return "", false
	}
	return step.Name, true
}

// topoSort runs Kahn's algorithm. On failure it walks the unresolved
// remainder to name one concrete cycle.
func (g *Graph) topoSort() ([]int, error) {
	inDegree := make([]int, len(g.nodes))
	for i := range g.nodes {
		inDegree[i] = len(g.deps[i])
	}

	var queue []int
	for i, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, i)
		}
	}

	var sorted []int
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		sorted = append(sorted, n)
		for _, dep := range g.dependents[n] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		return nil, &BuildError{Kind: CyclicDependency, Cycle: g.findCycle(inDegree)}
	}
	return sorted, nil
}

// findCycle walks dependency edges among the nodes Kahn could not resolve
// until it revisits one, then returns that loop.
func (g *Graph) findCycle(inDegree []int) []string {
	start := -1
	for i, deg := range inDegree {
		if deg > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	visited := make(map[int]int) // node -> position in path
	var path []int
	n := start
	for {
		if pos, ok := visited[n]; ok {
			var cycle []string
			for _, idx := range path[pos:] {
				cycle = append(cycle, g.nodes[idx].Addr)
			}
			cycle = append(cycle, g.nodes[n].Addr)
			return cycle
		}
		visited[n] = len(path)
		path = append(path, n)

		next := -1
		for _, dep := range g.deps[n] {
			if inDegree[dep] > 0 {
				next = dep
				break
			}
		}
		if next < 0 {
			return nil
		}
		n = next
	}
}

// Nodes returns the node table in declaration order.
func (g *Graph) Nodes() []Node {
	return g.nodes
}

// CreationOrder returns all addresses with dependencies before dependents.
func (g *Graph) CreationOrder() []string {
	out := make([]string, len(g.order))
	for i, idx := range g.order {
		out[i] = g.nodes[idx].Addr
	}
	return out
}

// DestructionOrder returns all addresses with dependents before
// dependencies, so nothing is torn down while still referenced.
func (g *Graph) DestructionOrder() []string {
	creation := g.CreationOrder()
	out := make([]string, len(creation))
	for i, addr := range creation {
		out[len(creation)-1-i] = addr
	}
	return out
}

// Dependencies returns the direct dependency addresses of addr.
func (g *Graph) Dependencies(addr string) []string {
	idx, ok := g.index[addr]
	if !ok {
		return nil
	}
	var out []string
	for _, d := range g.deps[idx] {
		out = append(out, g.nodes[d].Addr)
	}
	sort.Strings(out)
	return out
}

// TransitiveDependents returns every address that directly or indirectly
// depends on addr.
func (g *Graph) TransitiveDependents(addr string) []string {
	idx, ok := g.index[addr]
	if !ok {
		return nil
	}
	seen := make(map[int]bool)
	stack := []int{idx}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range g.dependents[n] {
			if !seen[dep] {
				seen[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	var out []string
	for i := range seen {
		out = append(out, g.nodes[i].Addr)
	}
	sort.Strings(out)
	return out
}

// DOT renders the graph in Graphviz format.
func (g *Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph resources {\n  rankdir = \"RL\";\n")
	for _, n := range g.nodes {
		fmt.Fprintf(&b, "  %q;\n", n.Addr)
	}
	for _, e := range g.edges {
		fmt.Fprintf(&b, "  %q -> %q;\n", g.nodes[e[0]].Addr, g.nodes[e[1]].Addr)
	}
	b.WriteString("}\n")
	return b.String()
}
