// Package trigger turns Firestore document CloudEvents into status changes and
// decides whether a change should start a stage.
package trigger

import (
	"encoding/json"
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/obraflow/internal/jobs"
	"github.com/Lllllllleong/obraflow/internal/models"
)

// Firestore document event types.
const (
	EventCreated = "google.cloud.firestore.document.v1.created"
	EventUpdated = "google.cloud.firestore.document.v1.updated"
	EventWritten = "google.cloud.firestore.document.v1.written"
	EventDeleted = "google.cloud.firestore.document.v1.deleted"
)

// Change is the status movement carried by one document event. Before is
// empty for a created document, After is empty for a deleted one.
type Change struct {
	DocID   string
	Before  jobs.Status
	After   jobs.Status
	Created bool
}

// Parse decodes a Firestore CloudEvent with a JSON payload.
func Parse(e cloudevents.Event) (Change, error) {
	if !strings.HasPrefix(e.Type(), "google.cloud.firestore.document.v1.") {
		return Change{}, fmt.Errorf("unsupported event type %q", e.Type())
	}
	var data models.FirestoreEventData
	if err := json.Unmarshal(e.Data(), &data); err != nil {
		return Change{}, fmt.Errorf("json.Unmarshal: %w", err)
	}

	c := Change{
		Before:  jobs.Status(data.OldValue.String("status")),
		After:   jobs.Status(data.Value.String("status")),
		Created: data.OldValue == nil && data.Value != nil,
	}
	switch {
	case data.Value != nil:
		c.DocID = data.Value.ID()
	case data.OldValue != nil:
		c.DocID = data.OldValue.ID()
	default:
		// The subject is "documents/<collection>/<id>".
		subject := e.Subject()
		c.DocID = subject[strings.LastIndex(subject, "/")+1:]
	}
	if c.DocID == "" {
		return Change{}, fmt.Errorf("event %s names no document", e.ID())
	}
	return c, nil
}

// Entered reports whether the change moved the document into st. Creating a
// document directly in st counts; rewriting other fields while in st does not.
func (c Change) Entered(st jobs.Status) bool {
	return c.After == st && c.Before != st
}

// CreatedIn reports whether the document was created with status st.
func (c Change) CreatedIn(st jobs.Status) bool {
	return c.Created && c.After == st
}
