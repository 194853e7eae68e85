package main

import (
	"context"
	"strings"

	"go-agentdb/pkg/engine"
	"go-agentdb/pkg/projections"
)

// stubLLMClient is a deterministic, provider-free LLMClient: it echoes the
// last user message and never calls a tool. It exists so agentd boots and
// answers requests out of the box; wire in a real engine.LLMClient
// implementation for production use.
type stubLLMClient struct{}

func (stubLLMClient) Call(_ context.Context, messages []projections.ContextMessage, _ []engine.ToolDeclaration, _ string) (engine.LLMResponse, error) {
	var lastUser string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == projections.RoleUser {
			lastUser = messages[i].Text
			break
		}
	}

	var reply strings.Builder
	reply.WriteString("You said: ")
	reply.WriteString(lastUser)

	return engine.LLMResponse{
		Text:      reply.String(),
		ModelName: "stub-echo",
	}, nil
}

var _ engine.LLMClient = stubLLMClient{}
