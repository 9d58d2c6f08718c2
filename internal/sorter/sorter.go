// Package sorter implements the plugin graph construction and topological
// sort (spec C8): five ordered edge-construction phases, priority
// propagation, cycle detection with trail reporting, and a final
// Hamiltonian-path topological sort. Grounded on
// original_source/src/backend/plugin_sorter.cpp, reimplemented over
// gonum.org/v1/gonum/graph instead of boost::graph.
package sorter

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/pluginsort/lootcore/internal/errs"
	"github.com/pluginsort/lootcore/internal/identity"
	"github.com/pluginsort/lootcore/internal/metadata"
	"github.com/pluginsort/lootcore/internal/pluginfile"
)

// Vertex is one plugin in the graph, carrying its merged, evaluated
// metadata alongside its parsed plugin data. Each vertex owns its own copy
// of the metadata; nothing aliases the source masterlist/userlist
// documents, so re-sorting never observes stale merged state.
type Vertex struct {
	id       int64
	Plugin   *pluginfile.Plugin
	Metadata metadata.PluginMetadata
	Messages []metadata.Message
}

func (v *Vertex) ID() int64 { return v.id }

// Graph is the plugin loads-before graph plus the bookkeeping the edge
// phases and cycle checks need.
type Graph struct {
	g      *simple.DirectedGraph
	byName map[string]*Vertex
}

// NewGraph creates one vertex per plugin, its masterlist+userlist metadata
// already merged and conditions already evaluated.
func NewGraph(plugins []*pluginfile.Plugin, masterlist, userlist *metadata.List, resolver metadata.Resolver) (*Graph, error) {
	g := &Graph{g: simple.NewDirectedGraph(), byName: make(map[string]*Vertex)}

	for i, p := range plugins {
		merged := masterlist.FindPlugin(p.Name)
		userEntry := userlist.FindPlugin(p.Name)
		if userEntry.Enabled && !userEntry.HasNameOnly() {
			merged = metadata.Merge(merged, userEntry)
		}

		evaluated, msgs := evaluateConditions(merged, resolver)
		msgs = append(msgs, metadata.ValidityMessages(metadata.PluginFacts{
			Name:     p.Name,
			IsActive: p.IsActive,
			CRC:      p.CRC,
		}, evaluated, resolver)...)

		v := &Vertex{id: int64(i), Plugin: p, Metadata: evaluated, Messages: msgs}
		g.g.AddNode(v)
		g.byName[p.Name] = v
	}
	return g, nil
}

// evaluateConditions drops every set-field entry whose condition
// evaluates false, returning the surviving metadata and any evaluation
// error messages (kind ConditionSyntax/FileAccess recovered locally, per
// spec §7's propagation policy).
func evaluateConditions(m metadata.PluginMetadata, r metadata.Resolver) (metadata.PluginMetadata, []metadata.Message) {
	var msgs []metadata.Message
	check := func(cond string) bool {
		if cond == "" {
			return true
		}
		ok, err := metadata.EvaluateCondition(cond, r)
		if err != nil {
			msgs = append(msgs, metadata.Message{
				Type:     metadata.Err,
				Contents: []metadata.MessageContent{{Text: err.Error(), Language: metadata.EnglishLanguage}},
			})
			return false
		}
		return ok
	}

	out := m
	out.LoadAfter = filterFiles(m.LoadAfter, check)
	out.Requirements = filterFiles(m.Requirements, check)
	out.Incompatibilities = filterFiles(m.Incompatibilities, check)
	out.Tags = filterTags(m.Tags, check)
	out.Locations = m.Locations

	var messages []metadata.Message
	for _, msg := range m.Messages {
		if check(msg.Condition) {
			messages = append(messages, msg)
		}
	}
	out.Messages = messages

	return out, msgs
}

func filterFiles(files []metadata.File, check func(string) bool) []metadata.File {
	var out []metadata.File
	for _, f := range files {
		if check(f.Condition) {
			out = append(out, f)
		}
	}
	return out
}

func filterTags(tags []metadata.Tag, check func(string) bool) []metadata.Tag {
	var out []metadata.Tag
	for _, t := range tags {
		if check(t.Condition) {
			out = append(out, t)
		}
	}
	return out
}

// VerticesInOrder maps a sorted plugin sequence (as returned by Sort) back
// to their annotated vertices, so callers can read accumulated messages
// without re-walking the graph.
func (g *Graph) VerticesInOrder(ordered []*pluginfile.Plugin) []*Vertex {
	out := make([]*Vertex, 0, len(ordered))
	for _, p := range ordered {
		if v, ok := g.byName[p.Name]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (g *Graph) vertexFor(normalizedName string) (*Vertex, bool) {
	v, ok := g.byName[normalizedName]
	return v, ok
}

func (g *Graph) addEdge(from, to *Vertex) {
	if from == to {
		return
	}
	if g.g.HasEdgeFromTo(from.id, to.id) {
		return
	}
	g.g.SetEdge(simple.Edge{F: from, T: to})
}

// pathExists reports whether a path from src to dst already exists, via
// BFS, the mechanism edgeCreatesCycle uses to veto a proposed edge that
// would close a cycle.
func (g *Graph) pathExists(src, dst *Vertex) bool {
	if src == dst {
		return true
	}
	visited := make(map[int64]bool)
	queue := []*Vertex{src}
	visited[src.id] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		to := g.g.From(cur.id)
		for to.Next() {
			next := to.Node().(*Vertex)
			if next.id == dst.id {
				return true
			}
			if !visited[next.id] {
				visited[next.id] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// edgeCreatesCycle reports whether adding lo -> hi would close a cycle,
// i.e. a path already exists from hi back to lo.
func (g *Graph) edgeCreatesCycle(lo, hi *Vertex) bool {
	return g.pathExists(hi, lo)
}

// Sort runs the full pipeline: phase 1 hard edges (AddHardEdges), priority
// propagation, the remaining edge phases, cycle detection, and
// topological sort.
func (g *Graph) Sort(oldOrder []string) ([]*pluginfile.Plugin, error) {
	g.AddHardEdges()
	g.PropagatePriorities()
	g.AddPriorityEdges()
	g.AddOverlapEdges()
	g.AddTieBreakEdges(oldOrder)

	if trail := g.findCycle(); trail != nil {
		return nil, errs.New(errs.Sorting, "cyclic interaction detected: "+strings.Join(trail, " -> "))
	}

	ordered, err := topo.Sort(g.g)
	if err != nil {
		return nil, errs.Wrap(errs.Sorting, "topological sort failed", err)
	}

	out := make([]*pluginfile.Plugin, 0, len(ordered))
	for _, n := range ordered {
		out = append(out, n.(*Vertex).Plugin)
	}
	return out, nil
}

// AddHardEdges is phase 1: master-flag, declared-master, requirement, and
// load-after edges. These are never cycle-checked.
func (g *Graph) AddHardEdges() {
	vertices := g.sortedVertices()

	for _, u := range vertices {
		for _, v := range vertices {
			if u.Plugin.IsMaster && !v.Plugin.IsMaster {
				g.addEdge(u, v)
			}
		}
	}

	for _, v := range vertices {
		for _, m := range v.Plugin.Masters {
			if mv, ok := g.vertexFor(m); ok {
				g.addEdge(mv, v)
			}
		}
		for _, f := range v.Metadata.Requirements {
			if uv, ok := g.vertexFor(f.NormalizedName()); ok {
				g.addEdge(uv, v)
			}
		}
		for _, f := range v.Metadata.LoadAfter {
			if uv, ok := g.vertexFor(f.NormalizedName()); ok {
				g.addEdge(uv, v)
			}
		}
	}
}

// PropagatePriorities is phase 2: seeds are every vertex with a strictly
// positive local or global priority, visited descending by (global,
// local); each seed's DFS walk raises every reachable vertex's priority
// to at least its own, sharing a color map across seeds to avoid
// redundant traversal.
func (g *Graph) PropagatePriorities() {
	vertices := g.sortedVertices()

	var seeds []*Vertex
	for _, v := range vertices {
		if v.Metadata.LocalPriority.Value > 0 || v.Metadata.GlobalPriority.Value > 0 {
			seeds = append(seeds, v)
		}
	}
	sort.SliceStable(seeds, func(i, j int) bool {
		a, b := seeds[i].Metadata, seeds[j].Metadata
		if a.GlobalPriority.Value != b.GlobalPriority.Value {
			return a.GlobalPriority.Value > b.GlobalPriority.Value
		}
		return a.LocalPriority.Value > b.LocalPriority.Value
	})

	colored := make(map[int64]bool)
	for _, seed := range seeds {
		g.propagateFrom(seed, seed.Metadata.LocalPriority.Value, seed.Metadata.GlobalPriority.Value, true, colored)
	}
}

func (g *Graph) propagateFrom(v *Vertex, local, global int, isSeed bool, colored map[int64]bool) {
	dominates := !isSeed && v.Metadata.LocalPriority.Value >= local && v.Metadata.GlobalPriority.Value >= global
	if colored[v.id] && dominates {
		return
	}
	colored[v.id] = true

	if v.Metadata.LocalPriority.Value < local {
		v.Metadata.LocalPriority = metadata.Priority{Value: local, IsExplicit: true}
	}
	if v.Metadata.GlobalPriority.Value < global {
		v.Metadata.GlobalPriority = metadata.Priority{Value: global, IsExplicit: true}
	}
	if dominates {
		return
	}

	to := g.g.From(v.id)
	for to.Next() {
		next := to.Node().(*Vertex)
		g.propagateFrom(next, local, global, false, colored)
	}
}

// AddPriorityEdges is phase 3.
func (g *Graph) AddPriorityEdges() {
	vertices := g.sortedVertices()
	for _, u := range vertices {
		for _, v := range vertices {
			if u == v {
				continue
			}
			if u.Metadata.GlobalPriority.Value == v.Metadata.GlobalPriority.Value &&
				u.Metadata.LocalPriority.Value == v.Metadata.LocalPriority.Value {
				continue
			}
			if u.Metadata.GlobalPriority.Value == 0 && v.Metadata.GlobalPriority.Value == 0 &&
				!recordsOverlap(u.Plugin, v.Plugin) {
				continue
			}
			lo, hi := rankPriority(u, v)
			if g.edgeCreatesCycle(lo, hi) {
				continue
			}
			g.addEdge(lo, hi)
		}
	}
}

// rankPriority determines the losing/winning vertex by comparing
// (global, local) lexicographically.
func rankPriority(u, v *Vertex) (lo, hi *Vertex) {
	ug, ul := u.Metadata.GlobalPriority.Value, u.Metadata.LocalPriority.Value
	vg, vl := v.Metadata.GlobalPriority.Value, v.Metadata.LocalPriority.Value
	if ug != vg {
		if ug < vg {
			return u, v
		}
		return v, u
	}
	if ul < vl {
		return u, v
	}
	return v, u
}

func recordsOverlap(a, b *pluginfile.Plugin) bool {
	if len(a.RecordIDs) == 0 || len(b.RecordIDs) == 0 {
		return false
	}
	small, big := a.RecordIDs, b.RecordIDs
	if len(big) < len(small) {
		small, big = big, small
	}
	for id := range small {
		if big[id] {
			return true
		}
	}
	return false
}

// AddOverlapEdges is phase 4: record-level conflicts, edge from the
// plugin with more overrides to the one with fewer.
func (g *Graph) AddOverlapEdges() {
	vertices := g.sortedVertices()
	for i, u := range vertices {
		for _, v := range vertices[i+1:] {
			if !recordsOverlap(u.Plugin, v.Plugin) {
				continue
			}
			if u.Plugin.NumOverrideRecords == v.Plugin.NumOverrideRecords {
				continue
			}
			var lo, hi *Vertex
			if u.Plugin.NumOverrideRecords > v.Plugin.NumOverrideRecords {
				hi, lo = u, v
			} else {
				hi, lo = v, u
			}
			if g.edgeCreatesCycle(lo, hi) {
				continue
			}
			g.addEdge(lo, hi)
		}
	}
}

// AddTieBreakEdges is phase 5: every remaining unordered pair gets an edge
// whose direction is plugincmp's deterministic ordering, so the final
// graph is Hamiltonian and the topological order is unique. Like every
// other phase, a pair already ordered transitively by an earlier phase is
// left alone rather than forced: edgeCreatesCycle(lo, hi) being true just
// means a path hi -> ... -> lo already exists, so the pair needs no
// tie-break edge at all.
func (g *Graph) AddTieBreakEdges(oldOrder []string) {
	rank := make(map[string]int, len(oldOrder))
	for i, n := range oldOrder {
		rank[identity.Normalize(n)] = i
	}

	vertices := g.sortedVertices()
	for i, u := range vertices {
		for _, v := range vertices[i+1:] {
			if g.g.HasEdgeFromTo(u.id, v.id) || g.g.HasEdgeFromTo(v.id, u.id) {
				continue
			}
			lo, hi := plugincmp(u, v, rank)
			if g.edgeCreatesCycle(lo, hi) {
				continue
			}
			g.addEdge(lo, hi)
		}
	}
}

// plugincmp orders u before v (returns lo=u, hi=v meaning lo -> hi i.e.
// lo loads first) per: rank in the old load order, then basename minus
// the last four characters case-insensitively, then full name
// case-sensitively.
func plugincmp(u, v *Vertex, rank map[string]int) (lo, hi *Vertex) {
	ri, uok := rank[u.Plugin.Name]
	rj, vok := rank[v.Plugin.Name]
	switch {
	case uok && vok:
		if ri < rj {
			return u, v
		}
		return v, u
	case uok:
		return u, v
	case vok:
		return v, u
	}

	ub := trimLastFour(u.Plugin.Name)
	vb := trimLastFour(v.Plugin.Name)
	if ub != vb {
		if ub < vb {
			return u, v
		}
		return v, u
	}
	if u.Plugin.Name < v.Plugin.Name {
		return u, v
	}
	return v, u
}

func trimLastFour(name string) string {
	if len(name) <= 4 {
		return strings.ToLower(name)
	}
	return strings.ToLower(name[:len(name)-4])
}

// sortedVertices returns every vertex ordered by insertion index, the
// deterministic base iteration order spec §5 requires so every run
// produces a bitwise-identical edge set before tie-break.
func (g *Graph) sortedVertices() []*Vertex {
	nodes := graph.NodesOf(g.g.Nodes())
	out := make([]*Vertex, len(nodes))
	for i, n := range nodes {
		out[i] = n.(*Vertex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// findCycle runs a DFS over the full graph and returns the tree-edge
// trail leading into the first back-edge found, or nil if the graph is
// acyclic. The trail is truncated at the first reoccurrence of the
// back-edge's target, matching plugin_sorter.cpp's cycle_detector.
func (g *Graph) findCycle() []string {
	vertices := g.sortedVertices()
	color := make(map[int64]int) // 0=white, 1=gray, 2=black

	var trail []string
	var dfs func(v *Vertex) []string
	dfs = func(v *Vertex) []string {
		color[v.id] = 1
		if idx := indexOfName(trail, v.Plugin.Name); idx >= 0 {
			trail = trail[:idx]
		}
		trail = append(trail, v.Plugin.Name)

		to := g.g.From(v.id)
		for to.Next() {
			next := to.Node().(*Vertex)
			switch color[next.id] {
			case 0:
				if found := dfs(next); found != nil {
					return found
				}
			case 1:
				closeIdx := indexOfName(trail, next.Plugin.Name)
				cycleTrail := append([]string(nil), trail[closeIdx:]...)
				cycleTrail = append(cycleTrail, next.Plugin.Name)
				return cycleTrail
			}
		}
		color[v.id] = 2
		trail = trail[:len(trail)-1]
		return nil
	}

	for _, v := range vertices {
		if color[v.id] == 0 {
			if found := dfs(v); found != nil {
				return found
			}
		}
	}
	return nil
}

func indexOfName(trail []string, name string) int {
	for i, n := range trail {
		if n == name {
			return i
		}
	}
	return -1
}
