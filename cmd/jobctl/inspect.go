package main

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/spf13/cobra"
	"google.golang.org/api/iterator"
)

const defaultListLimit = 20

type jobSummary struct {
	ID          string
	Status      string
	CreatedAt   time.Time
	ProcessedAt time.Time
	Error       string
}

func newGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <budget|compare> <id>",
		Short: "Print a job record as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.setupLogging()
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.firestoreClient(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := client.Collection(kind.collectionName()).Doc(args[1]).Get(cmd.Context())
			if err != nil {
				return fmt.Errorf("get %s job %s: %w", kind.name, args[1], err)
			}
			out, err := json.MarshalIndent(snap.Data(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list <budget|compare>",
		Short: "List recent jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.setupLogging()
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.firestoreClient(cmd.Context())
			if err != nil {
				return err
			}

			q := client.Collection(kind.collectionName()).Query
			if status != "" {
				q = q.Where("status", "==", status)
			}
			q = q.OrderBy("createdAt", firestore.Desc).Limit(limit)

			var rows []jobSummary
			it := q.Documents(cmd.Context())
			defer it.Stop()
			for {
				snap, err := it.Next()
				if err == iterator.Done {
					break
				}
				if err != nil {
					return fmt.Errorf("list %s jobs: %w", kind.name, err)
				}
				rows = append(rows, summarize(snap.Ref.ID, snap.Data()))
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderJobs(rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list jobs in this status")
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "Maximum number of jobs")
	return cmd
}

func summarize(id string, data map[string]any) jobSummary {
	s := jobSummary{ID: id}
	s.Status, _ = data["status"].(string)
	s.CreatedAt, _ = data["createdAt"].(time.Time)
	s.ProcessedAt, _ = data["processedAt"].(time.Time)

	// Budget jobs store a flat message, comparison jobs a {code, message} map.
	switch e := data["errorMessage"].(type) {
	case string:
		s.Error = e
	case map[string]any:
		code, _ := e["code"].(string)
		msg, _ := e["message"].(string)
		if code != "" {
			s.Error = code + ": " + msg
		} else {
			s.Error = msg
		}
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
