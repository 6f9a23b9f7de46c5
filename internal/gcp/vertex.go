package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/obraflow/internal/inference"
	"github.com/Lllllllleong/obraflow/internal/joberr"
)

const opVertex = "vertex inference"

// SystemPrompt frames every request as construction-document analysis.
const SystemPrompt = "Eres un asistente técnico de obras de construcción. Analizas presupuestos y planos y respondes únicamente con un objeto JSON válido que sigue exactamente la estructura pedida."

// VertexClient implements inference.Client on the Vertex AI SDK. It
// authenticates with the function's service account, so no API key is used.
type VertexClient struct {
	model      *genai.GenerativeModel
	modelName  string
	baseClient *genai.Client
}

var _ inference.Client = (*VertexClient)(nil)

// NewVertexClient creates a client for cfg.Model in cfg.ProjectID/cfg.Region.
func NewVertexClient(ctx context.Context, cfg inference.Config) (*VertexClient, error) {
	if cfg.ProjectID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	model := baseClient.GenerativeModel(cfg.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(cfg.Temperature),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}

	return &VertexClient{model: model, modelName: cfg.Model, baseClient: baseClient}, nil
}

func (c *VertexClient) Infer(ctx context.Context, parts ...inference.Part) (string, error) {
	genParts := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case inference.Text:
			genParts = append(genParts, genai.Text(string(v)))
		case inference.Blob:
			genParts = append(genParts, genai.Blob{MIMEType: v.MIMEType, Data: v.Data})
		}
	}

	logCtx := slog.With("reqId", uuid.New().String(), "model", c.modelName)
	start := time.Now()
	logCtx.Info("Sending inference request.", "parts", len(parts))

	resp, err := c.model.GenerateContent(ctx, genParts...)
	if err != nil {
		logCtx.Error("Inference request failed.", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if ctx.Err() != nil {
			return "", joberr.From(opVertex, ctx.Err())
		}
		return "", joberr.Transport(opVertex, status.Convert(err).Message(), err, retryableCode(status.Code(err)))
	}
	logCtx.Info("Received inference response.", "elapsed_ms", time.Since(start).Milliseconds())

	return responseText(resp)
}

func retryableCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.Aborted:
		return true
	}
	return false
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil {
			return "", joberr.Parse(opVertex, "prompt blocked: "+resp.PromptFeedback.BlockReason.String(), nil)
		}
		return "", joberr.Parse(opVertex, "no candidates in response", nil)
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", joberr.Parse(opVertex, "empty candidate, finish reason "+cand.FinishReason.String(), nil)
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	if text.Len() == 0 {
		return "", joberr.Parse(opVertex, "no text parts in response", nil)
	}
	return text.String(), nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
