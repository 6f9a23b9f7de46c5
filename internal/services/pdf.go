package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/obraflow/internal/joberr"
)

const pdfMIMEType = "application/pdf"

// PDFInspector checks that bytes are a readable PDF and counts its pages.
type PDFInspector interface {
	PageCount(data []byte) (int, error)
}

// PDFCPUInspector reads PDFs with pdfcpu in relaxed validation mode.
type PDFCPUInspector struct{}

func (PDFCPUInspector) PageCount(data []byte) (int, error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return 0, fmt.Errorf("missing %%PDF- header")
	}
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), cfg)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu: %w", err)
	}
	return n, nil
}

// DecodeDataURI decodes a base64 data URI such as
// "data:application/pdf;base64,JVBERi0x...". It returns the media type and bytes.
func DecodeDataURI(uri string) (string, []byte, error) {
	const op = "decode pdfDataUri"
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return "", nil, joberr.Input(op, "not a data URI", nil)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, joberr.Input(op, "data URI has no payload", nil)
	}
	params := strings.Split(header, ";")
	if params[len(params)-1] != "base64" {
		return "", nil, joberr.Input(op, "data URI is not base64 encoded", nil)
	}
	mediaType := params[0]
	if mediaType == "" {
		mediaType = "text/plain"
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); err != nil {
			return "", nil, joberr.Input(op, "invalid base64 payload", err)
		}
	}
	if len(data) == 0 {
		return "", nil, joberr.Input(op, "data URI payload is empty", nil)
	}
	return mediaType, data, nil
}
