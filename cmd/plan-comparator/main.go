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
	comparatorInstance *services.PlanComparatorFunction
	once               sync.Once
	initErr            error
)

func init() {
	slog.SetDefault(gcp.NewCloudLogger(os.Stdout, gcp.GetEnv("LOG_LEVEL", "info")))

	// Deployed with a Firestore trigger on planComparisonJobs/{jobId}. Both the
	// analysis and the impact stage run behind this one entry point.
	functions.CloudEvent("ComparePlans", comparePlans)
}

// main is required by the Go Functions Framework.
func main() {}

func comparePlans(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		comparatorInstance, initErr = services.NewPlanComparator(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	change, err := trigger.Parse(e)
	if err != nil {
		slog.Error("Failed to parse Firestore event", "error", err, "eventType", e.Type(), "eventId", e.ID())
		return nil
	}

	return comparatorInstance.Process(ctx, change)
}
