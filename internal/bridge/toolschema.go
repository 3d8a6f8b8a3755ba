package bridge

import (
	"fmt"
	"strings"

	"github.com/sebas/voicebridge/internal/catalog"
	"github.com/sebas/voicebridge/internal/realtime"
)

// Tool names offered to the model.
const (
	ToolEndCall      = "end_call"
	ToolTransferCall = "transfer_call"
)

// Valid end_call reasons.
var endCallReasons = []string{
	"conversation_complete",
	"caller_request",
	"escalation_needed",
}

// BuildToolSchema assembles the tool set for one session as a pure function
// of the department catalog snapshot. end_call is always offered;
// transfer_call only when at least one department is configured, with the
// department enum generated from the catalog names.
func BuildToolSchema(cat catalog.Catalog) []realtime.Tool {
	tools := []realtime.Tool{
		{
			Type:        "function",
			Name:        ToolEndCall,
			Description: "End the current phone call when the caller wants to hang up or the conversation is complete.",
			Parameters: realtime.ToolParameters{
				Type: "object",
				Properties: map[string]realtime.ToolProperty{
					"reason": {
						Type:        "string",
						Description: "The reason for ending the call",
						Enum:        endCallReasons,
					},
				},
				Required: []string{"reason"},
			},
		},
	}

	if cat.Empty() {
		return tools
	}

	tools = append(tools, realtime.Tool{
		Type:        "function",
		Name:        ToolTransferCall,
		Description: "Transfer the call to a different department when the caller needs specialized assistance.",
		Parameters: realtime.ToolParameters{
			Type: "object",
			Properties: map[string]realtime.ToolProperty{
				"department": {
					Type:        "string",
					Description: "The department to transfer the call to",
					Enum:        cat.Names(),
				},
				"reason": {
					Type:        "string",
					Description: "The reason for the transfer",
				},
			},
			Required: []string{"department", "reason"},
		},
	})
	return tools
}

// BuildInstructions appends transfer guidance to the base agent instructions
// when departments are configured. Without departments the base instructions
// are returned unchanged.
func BuildInstructions(base string, cat catalog.Catalog) string {
	if cat.Empty() {
		return base
	}

	names := strings.Join(cat.Names(), ", ")
	return base + fmt.Sprintf(
		"\n- When a caller needs specialized assistance, use the transfer_call function to connect them to the right department."+
			"\n- Available departments for transfer: %s."+
			"\n- Never call both transfer_call and end_call in the same conversation. Choose one action only.",
		names,
	)
}
