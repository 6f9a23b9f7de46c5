package models

import "strings"

// FirestoreEventData is the JSON payload of a google.cloud.firestore.document.v1
// CloudEvent. Value is nil on delete, OldValue is nil on create.
type FirestoreEventData struct {
	Value      *FirestoreDocument `json:"value,omitempty"`
	OldValue   *FirestoreDocument `json:"oldValue,omitempty"`
	UpdateMask *struct {
		FieldPaths []string `json:"fieldPaths"`
	} `json:"updateMask,omitempty"`
}

// FirestoreDocument is a document snapshot in the event payload. Only string
// fields are decoded; the trigger needs nothing else.
type FirestoreDocument struct {
	Name   string                    `json:"name"`
	Fields map[string]FirestoreValue `json:"fields"`
}

type FirestoreValue struct {
	StringValue *string `json:"stringValue,omitempty"`
}

// ID returns the last segment of the document resource name.
func (d *FirestoreDocument) ID() string {
	if d == nil {
		return ""
	}
	return d.Name[strings.LastIndex(d.Name, "/")+1:]
}

// String returns the string field name, or "" when absent or not a string.
func (d *FirestoreDocument) String(name string) string {
	if d == nil {
		return ""
	}
	if v, ok := d.Fields[name]; ok && v.StringValue != nil {
		return *v.StringValue
	}
	return ""
}
