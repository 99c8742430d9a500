package pipeline

import (
	"fmt"
	"strings"

	"maestro/mcp"
)

const routingSystemPrompt = "You are a tool routing assistant. Analyze user requests and determine which tool to use. Always respond with valid JSON."

const answerSystemPrompt = "You are a helpful assistant."

const groundedSystemPrompt = "You are a helpful assistant. Use the tool results provided to answer the user's question in a natural, conversational way. Be concise but informative."

// routingPrompt enumerates the session's advertised tools and their required
// parameters, and constrains the reply to the three-field decision object.
func routingPrompt(msg string, available []mcp.Tool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this user request and determine which tool to use:\n\n")
	fmt.Fprintf(&b, "User request: %s\n\n", msg)
	fmt.Fprintf(&b, "Available tools:\n")

	names := make([]string, 0, len(available))
	for i, tool := range available {
		names = append(names, fmt.Sprintf("%q", tool.Name))
		description := ""
		if tool.Description != nil {
			description = *tool.Description
		}
		fmt.Fprintf(&b, "%d. %s - %s Requires: %s\n",
			i+1, tool.Name, description, requiredParams(tool.InputSchema))
	}
	names = append(names, `"none"`)

	fmt.Fprintf(&b, "\nRespond in JSON format with:\n")
	fmt.Fprintf(&b, "{\n")
	fmt.Fprintf(&b, "    \"tool\": %s,\n", strings.Join(names, " | "))
	fmt.Fprintf(&b, "    \"parameters\": {...} or null,\n")
	fmt.Fprintf(&b, "    \"reasoning\": \"brief explanation\"\n")
	fmt.Fprintf(&b, "}\n\n")
	fmt.Fprintf(&b, "Only use tools if clearly needed. For general conversation, use \"none\".")
	return b.String()
}

func requiredParams(schema mcp.ToolInputSchema) string {
	if len(schema.Required) == 0 {
		return "no parameters"
	}
	parts := make([]string, 0, len(schema.Required))
	for _, name := range schema.Required {
		kind := "string"
		if spec, ok := schema.Properties[name]; ok {
			if t, ok := spec["type"].(string); ok && t != "" {
				kind = t
			}
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, kind))
	}
	return strings.Join(parts, ", ")
}

// groundedPrompt hands the serialized tool result to the model with the
// original question and a tight length bound.
func groundedPrompt(msg, toolData string) string {
	return fmt.Sprintf(
		"User question: %s\n\nTool results:\n%s\n\nProvide a helpful answer based on this information. Please limit your answer in 100 words.",
		msg, toolData)
}
