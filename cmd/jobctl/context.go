package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/obraflow/internal/gcp"
	"github.com/Lllllllleong/obraflow/internal/jobs"
)

type commandContext struct {
	projectID string
	logLevel  string

	firestore *firestore.Client
	storage   *storage.Client
}

func (c *commandContext) project() (string, error) {
	if c.projectID == "" {
		c.projectID = gcp.GetEnv("PROJECT_ID", "")
	}
	if c.projectID == "" {
		return "", errors.New("no project: pass --project or set PROJECT_ID")
	}
	return c.projectID, nil
}

func (c *commandContext) setupLogging() {
	level := c.logLevel
	if level == "" {
		level = gcp.GetEnv("LOG_LEVEL", "warn")
	}
	slog.SetDefault(gcp.NewCloudLogger(os.Stderr, level))
}

func (c *commandContext) firestoreClient(ctx context.Context) (*firestore.Client, error) {
	if c.firestore != nil {
		return c.firestore, nil
	}
	project, err := c.project()
	if err != nil {
		return nil, err
	}
	client, err := gcp.NewFirestoreClient(ctx, project)
	if err != nil {
		return nil, err
	}
	c.firestore = client
	return client, nil
}

func (c *commandContext) storageClient(ctx context.Context) (*storage.Client, error) {
	if c.storage != nil {
		return c.storage, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	c.storage = client
	return client, nil
}

func (c *commandContext) close() error {
	var errs []error
	if c.firestore != nil {
		errs = append(errs, c.firestore.Close())
	}
	if c.storage != nil {
		errs = append(errs, c.storage.Close())
	}
	return errors.Join(errs...)
}

// jobKind is the command-line name of a job kind.
type jobKind struct {
	name          string
	kind          jobs.Kind
	collectionEnv string
	collection    string
	machine       *jobs.Machine
}

var jobKinds = []jobKind{
	{"budget", jobs.KindBudgetExtraction, "BUDGET_COLLECTION", "budgetExtractionJobs", jobs.BudgetMachine},
	{"compare", jobs.KindPlanComparison, "COMPARISON_COLLECTION", "planComparisonJobs", jobs.ComparisonMachine},
}

func parseKind(name string) (jobKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, k := range jobKinds {
		if name == k.name || name == string(k.kind) {
			return k, nil
		}
	}
	return jobKind{}, fmt.Errorf("unknown job kind %q (want budget or compare)", name)
}

func (k jobKind) collectionName() string {
	return gcp.GetEnv(k.collectionEnv, k.collection)
}
