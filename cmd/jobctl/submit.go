package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/obraflow/internal/gcp"
	"github.com/Lllllllleong/obraflow/internal/jobs"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create a queued job record",
	}
	cmd.AddCommand(newSubmitBudgetCommand(ctx))
	cmd.AddCommand(newSubmitCompareCommand(ctx))
	return cmd
}

func newSubmitBudgetCommand(ctx *commandContext) *cobra.Command {
	var (
		pdfPath string
		notes   string
		upload  bool
	)
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Queue a budget extraction for a local PDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.setupLogging()
			data, err := os.ReadFile(pdfPath)
			if err != nil {
				return fmt.Errorf("read pdf: %w", err)
			}

			id := uuid.NewString()
			name := filepath.Base(pdfPath)
			var dataURI, storagePath string
			if upload {
				storagePath, err = ctx.upload(cmd.Context(), fmt.Sprintf("uploads/budgets/%s/%s", id, name), "application/pdf", data)
				if err != nil {
					return err
				}
			} else {
				dataURI = pdfDataURI(data)
			}

			doc := budgetDocument(name, notes, dataURI, storagePath)
			kind, _ := parseKind("budget")
			if err := ctx.create(cmd.Context(), kind, id, doc); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Path to the budget PDF")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes stored with the job")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload the PDF to STORAGE_BUCKET instead of inlining it")
	_ = cmd.MarkFlagRequired("pdf")
	return cmd
}

func newSubmitCompareCommand(ctx *commandContext) *cobra.Command {
	var (
		planA  string
		planB  string
		upload bool
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Queue a comparison between two plan versions",
		Long: "Queue a comparison between two plan versions. Plans are storage paths\n" +
			"(gs://bucket/object or an object in STORAGE_BUCKET) unless --upload is set,\n" +
			"in which case they are local files uploaded first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.setupLogging()
			id := uuid.NewString()
			pathA, pathB := planA, planB
			if upload {
				var err error
				if pathA, err = ctx.uploadFile(cmd.Context(), id, "A", planA); err != nil {
					return err
				}
				if pathB, err = ctx.uploadFile(cmd.Context(), id, "B", planB); err != nil {
					return err
				}
			}

			kind, _ := parseKind("compare")
			if err := ctx.create(cmd.Context(), kind, id, comparisonDocument(pathA, pathB)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&planA, "plan-a", "", "Plan version A")
	cmd.Flags().StringVar(&planB, "plan-b", "", "Plan version B")
	cmd.Flags().BoolVar(&upload, "upload", false, "Treat plans as local files and upload them to STORAGE_BUCKET")
	_ = cmd.MarkFlagRequired("plan-a")
	_ = cmd.MarkFlagRequired("plan-b")
	return cmd
}

func pdfDataURI(data []byte) string {
	return "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data)
}

// budgetDocument is the record the UI would create. Exactly one of dataURI
// and storagePath is set.
func budgetDocument(fileName, notes, dataURI, storagePath string) map[string]any {
	doc := map[string]any{
		"status":         string(jobs.StatusQueued),
		"sourceFileName": fileName,
		"createdAt":      firestore.ServerTimestamp,
	}
	if dataURI != "" {
		doc["pdfDataUri"] = dataURI
	}
	if storagePath != "" {
		doc["pdfStoragePath"] = storagePath
	}
	if notes != "" {
		doc["notas"] = notes
	}
	return doc
}

func comparisonDocument(planA, planB string) map[string]any {
	return map[string]any{
		"status":             string(jobs.StatusQueuedForAnalysis),
		"planoA_storagePath": planA,
		"planoB_storagePath": planB,
		"createdAt":          firestore.ServerTimestamp,
	}
}

func (c *commandContext) create(ctx context.Context, kind jobKind, id string, doc map[string]any) error {
	client, err := c.firestoreClient(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Collection(kind.collectionName()).Doc(id).Create(ctx, doc); err != nil {
		return fmt.Errorf("create %s job %s: %w", kind.name, id, err)
	}
	return nil
}

func (c *commandContext) uploadFile(ctx context.Context, id, label, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read plan %s: %w", label, err)
	}
	object := fmt.Sprintf("uploads/comparisons/%s/%s-%s", id, label, filepath.Base(path))
	return c.upload(ctx, object, gcp.DetectMIME("", path, data), data)
}

// upload writes data to STORAGE_BUCKET and returns its gs:// path.
func (c *commandContext) upload(ctx context.Context, object, contentType string, data []byte) (string, error) {
	bucket := gcp.GetEnv("STORAGE_BUCKET", "")
	if bucket == "" {
		return "", fmt.Errorf("--upload needs STORAGE_BUCKET to be set")
	}
	client, err := c.storageClient(ctx)
	if err != nil {
		return "", err
	}

	w := client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}
