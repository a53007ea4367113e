// Package flows holds the chatbot flow graph, the per-conversation session
// cursor, and the engine that walks the graph on inbound messages.
package flows

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ActionKind is a terminal node action.
type ActionKind string

const (
	ActionTransferToHuman ActionKind = "transfer_to_human"
	ActionTransferToAI    ActionKind = "transfer_to_ai_agent"
	ActionEndConversation ActionKind = "end_conversation"
)

// Option is one selectable branch out of a node.
type Option struct {
	Label      string   `json:"label" validate:"required"`
	Match      []string `json:"match" validate:"required,min=1,dive,required"`
	NextNodeID string   `json:"next_node_id" validate:"required"`
}

// Action is an optional terminal action on a node.
type Action struct {
	Type ActionKind `json:"type" validate:"required,oneof=transfer_to_human transfer_to_ai_agent end_conversation"`
}

// Node is one step of a flow. A node with no options and no action is
// implicitly terminal.
type Node struct {
	ID      string   `json:"id" validate:"required"`
	Message string   `json:"message"`
	Options []Option `json:"options" validate:"dive"`
	Action  *Action  `json:"action,omitempty"`
}

// Graph is an immutable-per-version flow graph: a start node plus an adjacency map.
type Graph struct {
	StartNodeID string          `json:"start_node_id" validate:"required"`
	Nodes       map[string]Node `json:"nodes" validate:"required,min=1,dive"`
}

// Node returns the node for an id.
func (g Graph) Node(id string) (Node, bool) {
	node, ok := g.Nodes[id]
	return node, ok
}

var validate = validator.New()

// DecodeGraph unmarshals and shape-validates a stored graph. Reference closure
// is the flow editor's responsibility (CheckClosed); the engine still fails
// safe on a dangling reference at runtime.
func DecodeGraph(raw []byte) (Graph, error) {
	var graph Graph
	if err := json.Unmarshal(raw, &graph); err != nil {
		return Graph{}, fmt.Errorf("decode flow graph: %w", err)
	}
	if err := validate.Struct(graph); err != nil {
		return Graph{}, fmt.Errorf("invalid flow graph: %w", err)
	}
	for key, node := range graph.Nodes {
		if node.ID != key {
			return Graph{}, fmt.Errorf("invalid flow graph: node %q keyed as %q", node.ID, key)
		}
	}
	return graph, nil
}

// CheckClosed verifies the graph is closed: the start node exists and every
// option resolves to a node in the same graph.
func (g Graph) CheckClosed() error {
	if _, ok := g.Nodes[g.StartNodeID]; !ok {
		return fmt.Errorf("start node %q not in graph", g.StartNodeID)
	}
	for id, node := range g.Nodes {
		for _, option := range node.Options {
			if _, ok := g.Nodes[option.NextNodeID]; !ok {
				return fmt.Errorf("node %q option %q references missing node %q", id, option.Label, option.NextNodeID)
			}
		}
	}
	return nil
}
