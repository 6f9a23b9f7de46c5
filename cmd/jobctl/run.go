package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/obraflow/internal/gcp"
	"github.com/Lllllllleong/obraflow/internal/jobs"
	"github.com/Lllllllleong/obraflow/internal/services"
)

// maxLocalStages bounds how many comparison stages one run command executes.
const maxLocalStages = 2

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "run <budget|compare> <id>",
		Short: "Run the pending stage of a job in this process",
		Long: "Run the pending stage of a job in this process instead of waiting for the\n" +
			"deployed trigger. Comparison jobs continue into the impact stage unless\n" +
			"--once is set.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.setupLogging()
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			project, err := ctx.project()
			if err != nil {
				return err
			}
			if err := os.Setenv("PROJECT_ID", project); err != nil {
				return err
			}
			id := args[1]

			if kind.kind == jobs.KindBudgetExtraction {
				fn, err := services.NewBudgetExtractor(cmd.Context())
				if err != nil {
					return err
				}
				if err := fn.Run(cmd.Context(), id); err != nil {
					return err
				}
				return ctx.printStatus(cmd, kind, id)
			}

			fn, err := services.NewPlanComparator(cmd.Context())
			if err != nil {
				return err
			}
			for i := 0; i < maxLocalStages; i++ {
				st, err := ctx.status(cmd, kind, id)
				if err != nil {
					return err
				}
				switch st {
				case jobs.StatusQueuedForAnalysis:
					err = fn.RunAnalysis(cmd.Context(), id)
				case jobs.StatusGeneratingImpactos:
					err = fn.RunImpacts(cmd.Context(), id)
				default:
					return ctx.printStatus(cmd, kind, id)
				}
				if err != nil {
					return err
				}
				if once {
					break
				}
			}
			return ctx.printStatus(cmd, kind, id)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Run a single comparison stage")
	return cmd
}

func (c *commandContext) status(cmd *cobra.Command, kind jobKind, id string) (jobs.Status, error) {
	client, err := c.firestoreClient(cmd.Context())
	if err != nil {
		return "", err
	}
	var rec struct {
		Status jobs.Status `firestore:"status"`
	}
	store := gcp.NewJobStore(client, kind.collectionName(), kind.machine)
	if err := store.Get(cmd.Context(), id, &rec); err != nil {
		return "", err
	}
	return rec.Status, nil
}

func (c *commandContext) printStatus(cmd *cobra.Command, kind jobKind, id string) error {
	st, err := c.status(cmd, kind, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, st)
	return nil
}
