package spec

import (
	"encoding/json"
	"testing"
)

// TestParse_RoundTrip tests a spec deserializes and reserializes without
// losing unknown config keys
func TestParse_RoundTrip(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": "n1", "type": "agent", "label": "Research", "config": {"agent_id": "agt-1", "custom_flag": true}, "position": {"x": 10, "y": 20}},
			{"id": "n2", "type": "output", "label": "Report"}
		],
		"edges": [{"from": "n1", "to": "n2", "label": "then"}],
		"collaboration_strategy": "sequential"
	}`)

	s, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(s.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(s.Nodes))
	}
	if s.CollaborationStrategy != "sequential" {
		t.Errorf("expected sequential strategy, got %q", s.CollaborationStrategy)
	}
	if s.Nodes[0].Config["custom_flag"] != true {
		t.Errorf("unknown config key should survive parsing")
	}
	if s.Nodes[0].Position == nil || s.Nodes[0].Position.X != 10 {
		t.Errorf("position should be decoded, got %+v", s.Nodes[0].Position)
	}
	if s.Edges[0].Label != "then" {
		t.Errorf("edge label should be decoded, got %q", s.Edges[0].Label)
	}
}

// TestParse_Empty tests empty input produces an empty spec
func TestParse_Empty(t *testing.T) {
	s, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) failed: %v", err)
	}
	if len(s.Nodes) != 0 || len(s.Edges) != 0 {
		t.Errorf("empty input should produce an empty spec")
	}
}

// TestClone_Isolation tests mutating a clone never reaches the source
func TestClone_Isolation(t *testing.T) {
	src := &WorkflowSpec{
		Nodes: []Node{
			{ID: "n1", Type: "agent", Label: "A", Config: map[string]interface{}{
				"agent_id": "agt-1",
				"nested":   map[string]interface{}{"depth": float64(1)},
			}, Position: &Position{X: 1, Y: 2}},
		},
		Edges: []Edge{{From: "n1", To: "n2"}},
	}

	dst := src.Clone()
	dst.Nodes[0].Label = "changed"
	dst.Nodes[0].Config["agent_id"] = "agt-2"
	dst.Nodes[0].Config["nested"].(map[string]interface{})["depth"] = float64(9)
	dst.Nodes[0].Position.X = 99
	dst.Edges[0].To = "n3"

	if src.Nodes[0].Label != "A" {
		t.Errorf("clone label mutation leaked into source")
	}
	if src.Nodes[0].Config["agent_id"] != "agt-1" {
		t.Errorf("clone config mutation leaked into source")
	}
	if src.Nodes[0].Config["nested"].(map[string]interface{})["depth"] != float64(1) {
		t.Errorf("clone nested config mutation leaked into source")
	}
	if src.Nodes[0].Position.X != 1 {
		t.Errorf("clone position mutation leaked into source")
	}
	if src.Edges[0].To != "n2" {
		t.Errorf("clone edge mutation leaked into source")
	}
}

// TestValidate_DuplicateAndEmptyIDs tests save-time invariants
func TestValidate_DuplicateAndEmptyIDs(t *testing.T) {
	dup := &WorkflowSpec{Nodes: []Node{
		{ID: "n1", Type: "agent", Label: "a"},
		{ID: "n1", Type: "tool", Label: "b"},
	}}
	if err := dup.Validate(); err == nil {
		t.Errorf("duplicate node id should fail validation")
	}

	empty := &WorkflowSpec{Nodes: []Node{{ID: "", Type: "agent", Label: "a"}}}
	if err := empty.Validate(); err == nil {
		t.Errorf("empty node id should fail validation")
	}

	dangling := &WorkflowSpec{
		Nodes: []Node{{ID: "n1", Type: "agent", Label: "a"}},
		Edges: []Edge{{From: "n1", To: "missing"}},
	}
	if err := dangling.Validate(); err != nil {
		t.Errorf("dangling edges are tolerated, got %v", err)
	}
}

// TestTypedConfig_Variants tests the per-type config decoding
func TestTypedConfig_Variants(t *testing.T) {
	agent := Node{ID: "a", Type: NodeTypeAgent, Config: map[string]interface{}{
		"agent_id": "agt-7", "model": "gpt-4o", "temperature": 0.2,
	}}
	ac, ok := agent.TypedConfig().(AgentConfig)
	if !ok {
		t.Fatalf("agent node should decode to AgentConfig")
	}
	if ac.AgentID != "agt-7" || ac.Model != "gpt-4o" || ac.Temperature != 0.2 {
		t.Errorf("unexpected agent config: %+v", ac)
	}

	skill := Node{ID: "s", Type: NodeTypeSkill, Config: map[string]interface{}{"skill_id": "sk-1"}}
	if sc := skill.TypedConfig().(SkillConfig); sc.SkillID != "sk-1" {
		t.Errorf("unexpected skill config: %+v", sc)
	}

	cond := Node{ID: "c", Type: NodeTypeCondition, Config: map[string]interface{}{"expression": "output.score > 5"}}
	if cc := cond.TypedConfig().(ConditionConfig); cc.Expression != "output.score > 5" {
		t.Errorf("unexpected condition config: %+v", cc)
	}

	hook := Node{ID: "w", Type: NodeTypeWebhook, Config: map[string]interface{}{"url": "https://example.com/h", "method": "POST"}}
	if wc := hook.TypedConfig().(WebhookConfig); wc.URL != "https://example.com/h" || wc.Method != "POST" {
		t.Errorf("unexpected webhook config: %+v", wc)
	}

	// Unknown types fall back to GenericConfig with the raw fields intact.
	custom := Node{ID: "x", Type: "experimental", Config: map[string]interface{}{"k": "v"}}
	gc, ok := custom.TypedConfig().(GenericConfig)
	if !ok {
		t.Fatalf("unknown node type should decode to GenericConfig")
	}
	if gc.Fields["k"] != "v" {
		t.Errorf("generic config should preserve fields: %+v", gc)
	}

	// Missing fields decode to zero values, not errors.
	bare := Node{ID: "b", Type: NodeTypeAgent}
	if bc := bare.TypedConfig().(AgentConfig); bc.AgentID != "" {
		t.Errorf("missing agent_id should decode to empty string")
	}
}

// TestCanonical_Deterministic tests canonical serialization is stable
// across config map key insertion order
func TestCanonical_Deterministic(t *testing.T) {
	a := &WorkflowSpec{Nodes: []Node{{ID: "n1", Type: "agent", Label: "a",
		Config: map[string]interface{}{"z": 1, "a": 2, "m": 3}}}}
	b := &WorkflowSpec{Nodes: []Node{{ID: "n1", Type: "agent", Label: "a",
		Config: map[string]interface{}{"m": 3, "z": 1, "a": 2}}}}

	ca, err := a.Canonical()
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}
	cb, err := b.Canonical()
	if err != nil {
		t.Fatalf("Canonical failed: %v", err)
	}

	if string(ca) != string(cb) {
		t.Errorf("canonical form should not depend on map insertion order:\n%s\n%s", ca, cb)
	}

	var decoded WorkflowSpec
	if err := json.Unmarshal(ca, &decoded); err != nil {
		t.Fatalf("canonical form should be valid JSON: %v", err)
	}
}

// TestAgentCount tests agent-node counting used by rate limit tiers
func TestAgentCount(t *testing.T) {
	s := &WorkflowSpec{Nodes: []Node{
		{ID: "1", Type: NodeTypeAgent},
		{ID: "2", Type: NodeTypeTool},
		{ID: "3", Type: NodeTypeAgent},
	}}
	if got := s.AgentCount(); got != 2 {
		t.Errorf("expected 2 agent nodes, got %d", got)
	}
}
