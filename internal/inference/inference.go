// Package inference is the single place where model calls are made. Stages
// build a list of parts (prompt text and binary attachments) and get back the
// model's raw text; extraction and validation happen elsewhere.
package inference

import (
	"context"
	"encoding/base64"
)

// Part is one element of a request: Text or Blob.
type Part interface {
	isPart()
}

// Text is a prompt fragment.
type Text string

// Blob is binary content sent inline, base64 encoded on the wire.
type Blob struct {
	MIMEType string
	Data     []byte
}

func (Text) isPart() {}
func (Blob) isPart() {}

// Base64 returns the standard base64 encoding of the blob's data.
func (b Blob) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Data)
}

// Client performs one inference call and returns the model's text.
// Implementations return *joberr.Error values.
type Client interface {
	Infer(ctx context.Context, parts ...Part) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, parts ...Part) (string, error)

func (f ClientFunc) Infer(ctx context.Context, parts ...Part) (string, error) {
	return f(ctx, parts...)
}
