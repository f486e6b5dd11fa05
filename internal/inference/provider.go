// Package inference implements the inference gateway: model providers,
// structured output schemas, and the async request path that correlates
// answers back to the agent through the bus.
package inference

import (
	"context"
	"fmt"
)

// Provider is the interface for model API clients.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	// DefaultModel returns the configured default model.
	DefaultModel() string
}

// CompletionRequest contains the parameters for a completion request.
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
	// Schema, when set, requests structured output conforming to a flat
	// JSON-schema object. Nil requests plain text.
	Schema *Schema
}

// CompletionResponse contains the response from a completion request.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Property types accepted in a flat output schema.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
)

// Property is one top-level field of a structured answer. Order is
// significant: answers are delivered with fields in declaration order.
type Property struct {
	Name        string
	Type        string
	Description string
}

// Schema describes a flat structured-output object: no nesting, no arrays,
// no floating point. Every property is required.
type Schema struct {
	Name       string
	Properties []Property
}

// Validate checks the schema stays within the flat subset.
func (s *Schema) Validate() error {
	if len(s.Properties) == 0 {
		return fmt.Errorf("schema %q has no properties", s.Name)
	}
	for _, p := range s.Properties {
		switch p.Type {
		case TypeString, TypeInteger, TypeBoolean:
		default:
			return fmt.Errorf("schema %q: property %q has unsupported type %q", s.Name, p.Name, p.Type)
		}
	}
	return nil
}

// JSONSchema renders the schema as a JSON-schema object suitable for
// strict structured output.
func (s *Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	required := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		entry := map[string]any{"type": p.Type}
		if p.Description != "" {
			entry["description"] = p.Description
		}
		props[p.Name] = entry
		required = append(required, p.Name)
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
