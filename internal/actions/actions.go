// Package actions maps discrete UI-originated actions to tool calls and
// optional event publications. No planner is involved on this path.
package actions

import (
	"errors"

	"github.com/loomhq/loom/internal/ui"
)

// Schema tags on the action surface.
const (
	SchemaActionV1       = "action.v1"
	SchemaActionResultV1 = "action.result.v1"
)

// ErrNoRoute is returned when no route exists for an action type.
var ErrNoRoute = errors.New("no route for action type")

// Action is one discrete UI-originated request.
type Action struct {
	Schema         string         `json:"schema"`
	Type           string         `json:"type"`
	ConversationID string         `json:"conversationId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
}

// Result is the action.result.v1 response. Document updates normally
// arrive over the event path; UIPatch is set only when a route answers
// with an immediate patch.
type Result struct {
	Schema  string    `json:"schema"`
	Text    string    `json:"text,omitempty"`
	UIPatch *ui.Patch `json:"uiPatch,omitempty"`
}

// Route maps one action type to a tool call plus an optional publication.
type Route struct {
	// ActionType is the route key, e.g. "shop.buy".
	ActionType string `json:"actionType"`
	// Tool names the tool to execute.
	Tool string `json:"tool"`
	// ArgMapping maps tool argument names to action payload fields.
	ArgMapping map[string]string `json:"argMapping,omitempty"`
	// Publish, when set, emits a domain event after a successful call.
	Publish *PublishSpec `json:"publish,omitempty"`
	// SuccessText is returned to the caller on success.
	SuccessText string `json:"successText,omitempty"`
}

// PublishSpec builds the event payload from three sources: fixed values,
// copies of action payload fields, and JSONPath extractions from the tool
// result body.
type PublishSpec struct {
	Subject            string            `json:"subject"`
	Fixed              map[string]any    `json:"fixed,omitempty"`
	FromActionPayload  map[string]string `json:"fromActionPayload,omitempty"`
	FromToolResultPath map[string]string `json:"fromToolResultJsonPath,omitempty"`
}
