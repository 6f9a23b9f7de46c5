package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/obraflow/internal/gcp"
	"github.com/Lllllllleong/obraflow/internal/services"
	"github.com/Lllllllleong/obraflow/internal/trigger"
)

var (
	extractorInstance *services.BudgetExtractorFunction
	once              sync.Once
	initErr           error
)

func init() {
	slog.SetDefault(gcp.NewCloudLogger(os.Stdout, gcp.GetEnv("LOG_LEVEL", "info")))

	// Deployed with a Firestore trigger on budgetExtractionJobs/{jobId}.
	functions.CloudEvent("ExtractBudget", extractBudget)
}

// main is required by the Go Functions Framework.
func main() {}

func extractBudget(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		extractorInstance, initErr = services.NewBudgetExtractor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	change, err := trigger.Parse(e)
	if err != nil {
		// Redelivery cannot fix a malformed event.
		slog.Error("Failed to parse Firestore event", "error", err, "eventType", e.Type(), "eventId", e.ID())
		return nil
	}

	return extractorInstance.Process(ctx, change)
}
