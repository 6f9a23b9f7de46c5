package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Lllllllleong/obraflow/internal/gcp"
	"github.com/Lllllllleong/obraflow/internal/inference"
	"github.com/Lllllllleong/obraflow/internal/joberr"
)

type fakeBlobs map[string]*gcp.Blob

func (f fakeBlobs) Get(ctx context.Context, path string) (*gcp.Blob, error) {
	if strings.TrimSpace(path) == "" {
		return nil, joberr.Input("fetch blob", "storage path is empty", nil)
	}
	blob, ok := f[path]
	if !ok {
		return nil, joberr.Input("fetch blob", fmt.Sprintf("object %q does not exist", path), nil)
	}
	return blob, nil
}

type fakeInspector struct {
	pages int
	err   error
}

func (f fakeInspector) PageCount(data []byte) (int, error) {
	return f.pages, f.err
}

type savedOutput struct {
	jobID, stage, raw string
}

type fakeArchive struct {
	mu    sync.Mutex
	saved []savedOutput
}

func (a *fakeArchive) Save(ctx context.Context, jobID, stage, raw string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, savedOutput{jobID, stage, raw})
	return nil
}

// call is one recorded inference request.
type call struct {
	kind  string
	parts []inference.Part
}

// stubModel answers by prompt kind ("diff", "quantities", "impacts",
// "budget"). A kind mapped to an error fails instead.
type stubModel struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []call
}

func (m *stubModel) Infer(ctx context.Context, parts ...inference.Part) (string, error) {
	kind := promptKind(parts)
	m.mu.Lock()
	m.calls = append(m.calls, call{kind: kind, parts: parts})
	m.mu.Unlock()

	if err, ok := m.errs[kind]; ok {
		return "", err
	}
	if resp, ok := m.responses[kind]; ok {
		return resp, nil
	}
	return "", fmt.Errorf("no stub response for %q", kind)
}

func (m *stubModel) callsOf(kind string) []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []call
	for _, c := range m.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (m *stubModel) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func promptKind(parts []inference.Part) string {
	if len(parts) == 0 {
		return ""
	}
	text, _ := parts[0].(inference.Text)
	switch {
	case strings.Contains(string(text), "Identifica todas las diferencias"):
		return "diff"
	case strings.Contains(string(text), "Estima la variación de cantidades"):
		return "quantities"
	case strings.Contains(string(text), "construye un árbol de impactos"):
		return "impacts"
	case strings.Contains(string(text), "presupuesto de obra"):
		return "budget"
	}
	return "unknown"
}
