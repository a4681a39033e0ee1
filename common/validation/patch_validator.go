package validation

import (
	"fmt"
)

// maxAgentNodesPerPatch caps how many agent nodes a single patch can add
const maxAgentNodesPerPatch = 5

// PatchValidator validates JSON Patch operations against workflow specs
// before they are applied
type PatchValidator struct{}

// NewPatchValidator creates a new patch validator
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{}
}

// ValidateOperations validates all patch operations
func (v *PatchValidator) ValidateOperations(operations []map[string]interface{}) error {
	agentCount := 0

	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}

		// Count agent nodes being added
		if op["op"] == "add" && op["path"] == "/nodes/-" {
			if value, ok := op["value"].(map[string]interface{}); ok {
				if nodeType, ok := value["type"].(string); ok && nodeType == "agent" {
					agentCount++
				}
			}
		}
	}

	if agentCount > maxAgentNodesPerPatch {
		return fmt.Errorf("patch validation failed: cannot add more than %d agent nodes per patch (attempted: %d)",
			maxAgentNodesPerPatch, agentCount)
	}

	return nil
}

// validateOperation validates a single operation
func (v *PatchValidator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'op' field", index)
	}

	path, ok := op["path"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'path' field", index)
	}

	switch opType {
	case "add", "replace":
		if _, ok := op["value"]; !ok {
			return fmt.Errorf("operation %d: 'value' required for %s operation", index, opType)
		}
		if path == "/nodes/-" {
			return v.validateNodeValue(op["value"], index)
		}
		if path == "/edges/-" {
			return v.validateEdgeValue(op["value"], index)
		}

	case "remove":
		return nil

	default:
		return fmt.Errorf("operation %d: unsupported operation type: %s", index, opType)
	}

	return nil
}

// validateNodeValue validates a node value in a patch
func (v *PatchValidator) validateNodeValue(value interface{}, opIndex int) error {
	nodeValue, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("operation %d: node value must be an object, got %T", opIndex, value)
	}

	if _, ok := nodeValue["id"].(string); !ok {
		return fmt.Errorf("operation %d: node must have 'id' field (string)", opIndex)
	}
	if _, ok := nodeValue["type"].(string); !ok {
		return fmt.Errorf("operation %d: node must have 'type' field (string)", opIndex)
	}

	// Config MUST be an object, not array/string
	if config, exists := nodeValue["config"]; exists {
		if _, ok := config.(map[string]interface{}); !ok {
			return fmt.Errorf("operation %d: node 'config' must be an object, got %T (hint: use {\"key\": \"value\"}, not [\"key\"])", opIndex, config)
		}
	}

	return nil
}

// validateEdgeValue validates an edge value in a patch
func (v *PatchValidator) validateEdgeValue(value interface{}, opIndex int) error {
	edgeValue, ok := value.(map[string]interface{})
	if !ok {
		return fmt.Errorf("operation %d: edge value must be an object, got %T", opIndex, value)
	}

	if _, ok := edgeValue["from"].(string); !ok {
		return fmt.Errorf("operation %d: edge must have 'from' field (string)", opIndex)
	}
	if _, ok := edgeValue["to"].(string); !ok {
		return fmt.Errorf("operation %d: edge must have 'to' field (string)", opIndex)
	}

	return nil
}
