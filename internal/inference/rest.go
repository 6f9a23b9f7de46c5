package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/obraflow/internal/joberr"
)

const opInfer = "inference"

// RESTClient calls a Gemini-compatible generateContent endpoint over HTTP.
type RESTClient struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient fills defaults into cfg. A missing API key is not an error
// here; it is reported by Infer so the job records it.
func NewRESTClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *RESTClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RESTClient{cfg: cfg, http: httpClient, logger: logger}
}

type restPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type restRequest struct {
	Contents []struct {
		Parts []restPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMIMEType string  `json:"response_mime_type"`
		Temperature      float32 `json:"temperature"`
	} `json:"generationConfig"`
}

type restResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *RESTClient) url() string {
	return fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.Endpoint, "/"), c.cfg.Model)
}

func (c *RESTClient) Infer(ctx context.Context, parts ...Part) (string, error) {
	if c.cfg.APIKey == "" {
		return "", joberr.Config(opInfer, "inference API key is not configured (GEMINI_API_KEY)")
	}

	var body restRequest
	body.Contents = make([]struct {
		Parts []restPart `json:"parts"`
	}, 1)
	for _, p := range parts {
		switch v := p.(type) {
		case Text:
			body.Contents[0].Parts = append(body.Contents[0].Parts, restPart{Text: string(v)})
		case Blob:
			body.Contents[0].Parts = append(body.Contents[0].Parts, restPart{
				InlineData: &inlineData{MIMEType: v.MIMEType, Data: v.Base64()},
			})
		}
	}
	body.GenerationConfig.ResponseMIMEType = "application/json"
	body.GenerationConfig.Temperature = c.cfg.Temperature

	bs, err := json.Marshal(body)
	if err != nil {
		return "", joberr.Internal(opInfer, "encode request", err)
	}

	rid := uuid.New().String()
	start := time.Now()
	logCtx := c.logger.With("reqId", rid, "model", c.cfg.Model)
	logCtx.Info("Sending inference request.", "parts", len(parts), "bytes", len(bs))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(bs))
	if err != nil {
		return "", joberr.Internal(opInfer, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		logCtx.Error("Inference request failed.", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		if ctx.Err() != nil {
			return "", joberr.From(opInfer, ctx.Err())
		}
		return "", joberr.Transport(opInfer, "request failed", err, true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", joberr.Transport(opInfer, "read response", err, true)
	}
	logCtx.Info("Received inference response.",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	var out restResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode/100 != 2 {
		msg := resp.Status
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", joberr.Transport(opInfer, msg, nil, retryable)
	}
	if decodeErr != nil {
		return "", joberr.Parse(opInfer, "decode response envelope", decodeErr)
	}
	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return "", joberr.Parse(opInfer, "prompt blocked: "+out.PromptFeedback.BlockReason, nil)
		}
		return "", joberr.Parse(opInfer, "no candidates in response", nil)
	}

	var text strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return "", joberr.Parse(opInfer, "empty response text", errors.New("finish reason "+out.Candidates[0].FinishReason))
	}
	return text.String(), nil
}
