package spec

// Typed views over the open config map. The raw map stays the source of
// truth for serialization (diff and merge must round-trip unknown keys);
// these variants exist so stage checks and services read config fields
// without scattering type assertions.

// TypedConfig is the tagged union over node config payloads, keyed by the
// node's type. Unknown node types decode to GenericConfig.
type TypedConfig interface {
	configVariant()
}

// AgentConfig is the payload for agent nodes.
type AgentConfig struct {
	AgentID     string
	Model       string
	Temperature float64
}

// SkillConfig is the payload for skill nodes.
type SkillConfig struct {
	SkillID string
}

// ConditionConfig is the payload for condition nodes.
type ConditionConfig struct {
	Expression string
}

// WebhookConfig is the payload for webhook nodes.
type WebhookConfig struct {
	URL    string
	Method string
}

// GenericConfig preserves the fields of node types without a dedicated
// variant.
type GenericConfig struct {
	Fields map[string]interface{}
}

func (AgentConfig) configVariant()     {}
func (SkillConfig) configVariant()     {}
func (ConditionConfig) configVariant() {}
func (WebhookConfig) configVariant()   {}
func (GenericConfig) configVariant()   {}

// TypedConfig decodes the node's config map into the variant for its type.
// Missing fields decode to zero values; callers decide whether a missing
// field is an error (lint) or acceptable.
func (n Node) TypedConfig() TypedConfig {
	switch n.Type {
	case NodeTypeAgent:
		return AgentConfig{
			AgentID:     configString(n.Config, "agent_id"),
			Model:       configString(n.Config, "model"),
			Temperature: configFloat(n.Config, "temperature"),
		}
	case NodeTypeSkill:
		return SkillConfig{
			SkillID: configString(n.Config, "skill_id"),
		}
	case NodeTypeCondition:
		return ConditionConfig{
			Expression: configString(n.Config, "expression"),
		}
	case NodeTypeWebhook:
		return WebhookConfig{
			URL:    configString(n.Config, "url"),
			Method: configString(n.Config, "method"),
		}
	default:
		return GenericConfig{Fields: n.Config}
	}
}

func configString(config map[string]interface{}, key string) string {
	if config == nil {
		return ""
	}
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

func configFloat(config map[string]interface{}, key string) float64 {
	if config == nil {
		return 0
	}
	if v, ok := config[key].(float64); ok {
		return v
	}
	return 0
}
