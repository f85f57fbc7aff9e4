// Package ui models the generative UI document ("ui.v1"), the patch
// operations applied against it, and the store of live UI instances that
// event-driven refreshes look up.
package ui

import (
	"time"

	"github.com/google/uuid"
)

// Schema tags on the wire.
const (
	SchemaUIV1    = "ui.v1"
	SchemaPatchV1 = "ui.patch.v1"
)

// Document is the composed UI payload sent to clients. It is a plain JSON
// object so the patch engine and the browser renderer see the same shape:
//
//	{schema, root, data, bindings, subscriptions}
type Document map[string]any

// Binding propagates a data-snapshot value into a component prop.
type Binding struct {
	ComponentPath string `json:"componentPath"`
	Prop          string `json:"prop"`
	DataKey       string `json:"dataKey"`
}

// RefreshSpec names one tool call to re-run when a subscribed event fires,
// and the document path its fresh result is written to.
type RefreshSpec struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	PatchPath string         `json:"patchPath"`
}

// Subscription declares that a document refreshes on a given event subject.
type Subscription struct {
	Event   string        `json:"event"`
	Refresh []RefreshSpec `json:"refresh"`
}

// Instance is one live UI document owned by a conversation/user pair. A new
// assistant turn supersedes the previous instance; subscriptions live as
// long as the instance does.
type Instance struct {
	ID             string
	ConversationID string
	UserID         string
	Document       Document
	Subscriptions  []Subscription
	CreatedAt      time.Time
}

// NewInstance creates an instance with a fresh id.
func NewInstance(conversationID, userID string, doc Document, subs []Subscription) *Instance {
	return &Instance{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		Document:       doc,
		Subscriptions:  subs,
		CreatedAt:      time.Now().UTC(),
	}
}

// RefreshSpecsFor returns the refresh specs of every subscription matching
// the event subject.
func (i *Instance) RefreshSpecsFor(subject string) []RefreshSpec {
	var specs []RefreshSpec
	for _, sub := range i.Subscriptions {
		if sub.Event == subject {
			specs = append(specs, sub.Refresh...)
		}
	}
	return specs
}
