package engine

import (
	"slices"

	"github.com/shaiso/Botflow/internal/domain"
)

// Node — узел графа переходов (один flow).
type Node struct {
	// Flow — flow собранного шаблона.
	Flow *domain.Flow

	// ID — идентификатор flow.
	ID string

	// Targets — flows, в начало которых возможен переход.
	Targets []*Node

	// Sources — flows, из которых возможен переход сюда.
	Sources []*Node
}

// Graph — граф переходов между flows.
//
// Рёбра строятся из step.next, condition.next и global_intents
// (глобальные намерения считаются достижимыми из main).
// Ссылки на несуществующие flows в граф не попадают.
type Graph struct {
	// Nodes — все узлы (flowID → Node).
	Nodes map[string]*Node

	// Order — flows в порядке объявления в шаблоне.
	Order []*Node
}

// BuildGraph строит граф переходов шаблона.
func BuildGraph(t *domain.Template) *Graph {
	g := &Graph{
		Nodes: make(map[string]*Node, len(t.Flows)),
		Order: make([]*Node, 0, len(t.Flows)),
	}

	// Первый проход: узлы
	for i := range t.Flows {
		flow := &t.Flows[i]
		if _, exists := g.Nodes[flow.ID]; exists {
			continue
		}
		node := &Node{Flow: flow, ID: flow.ID}
		g.Nodes[flow.ID] = node
		g.Order = append(g.Order, node)
	}

	// Второй проход: рёбра
	for _, node := range g.Order {
		for _, step := range node.Flow.Steps {
			g.addEdge(node.ID, step.Next)
			for _, cond := range step.Condition {
				g.addEdge(node.ID, cond.Next)
			}
		}
	}

	for _, target := range t.GlobalIntents {
		g.addEdge(domain.DefaultFlowID, target)
	}

	return g
}

// addEdge добавляет ребро, пропуская дубликаты и неизвестные узлы.
func (g *Graph) addEdge(fromID, toID string) {
	from, to := g.GetNode(fromID), g.GetNode(toID)
	if from == nil || to == nil || from == to {
		return
	}
	if slices.Contains(from.Targets, to) {
		return
	}
	from.Targets = append(from.Targets, to)
	to.Sources = append(to.Sources, from)
}

// Reachable возвращает ID flows, достижимых из startID (включая его).
func (g *Graph) Reachable(startID string) map[string]bool {
	seen := make(map[string]bool)
	start := g.GetNode(startID)
	if start == nil {
		return seen
	}

	queue := []*Node{start}
	seen[start.ID] = true
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range node.Targets {
			if !seen[next.ID] {
				seen[next.ID] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

// Unreachable возвращает flows, недостижимые из startID, в порядке объявления.
func (g *Graph) Unreachable(startID string) []string {
	reachable := g.Reachable(startID)
	if len(reachable) == g.Size() {
		return nil
	}
	var result []string
	for _, node := range g.Order {
		if !reachable[node.ID] {
			result = append(result, node.ID)
		}
	}
	return result
}

// GetNode возвращает узел по ID.
func (g *Graph) GetNode(id string) *Node {
	return g.Nodes[id]
}

// Size возвращает количество узлов.
func (g *Graph) Size() int {
	return len(g.Nodes)
}
