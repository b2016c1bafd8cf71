// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tomtom215/shearguard/internal/dataset"
	"github.com/tomtom215/shearguard/internal/logging"
	"github.com/tomtom215/shearguard/internal/orchestrator"
)

// withApp opens the app for the duration of fn.
func (c *cli) withApp(cmd *cobra.Command, mode kvMode, fn func(a *app) error) error {
	a, err := openApp(cmd.Context(), c.cfg, mode)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func newInitCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the registry and seed model if they are missing",
		Long: `Create the version registry next to an existing current model, or fit
the seed model on the base dataset when neither exists. Running init on an
initialized data directory changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, kvOptional, func(a *app) error {
				rec, err := a.orch.Init(cmd.Context())
				if err != nil {
					return err
				}
				return c.printJSON(rec)
			})
		},
	}
}

func newRetrainCmd(c *cli) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Retrain on base plus additional data and promote if the gate passes",
		Long: `Back up the current model, train a candidate on the base dataset plus the
additional samples, and promote it when its R2 or OOB score beats the current
model by at least the threshold. Any failure restores the backup.

Exit status is 0 when promoted, 2 when rejected and 3 when there is no
additional data.`,
		Example: `  shearguard retrain
  shearguard retrain --file new_beams.json --threshold 0.005`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, kvOptional, func(a *app) error {
				ctx := cmd.Context()
				if file != "" {
					samples, err := dataset.ReadSamplesFile(file)
					if err != nil {
						return err
					}
					total, err := a.loader.AppendAdditional(ctx, samples...)
					if err != nil {
						return err
					}
					logging.Info().Str("file", file).Int("added", len(samples)).Int("pending", total).Msg("Additional samples appended")
				}

				res, err := a.orch.Retrain(ctx)
				if errors.Is(err, orchestrator.ErrNoData) {
					_, _ = fmt.Fprintln(c.stderr, "No additional training data; nothing to do.")
					return &exitError{code: exitNoData, err: err}
				}
				if err != nil {
					return err
				}
				if perr := c.printJSON(res); perr != nil {
					return perr
				}
				if !res.Promoted {
					return &exitError{code: exitRejected}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON array of samples to append before retraining")
	return cmd
}

func newRollbackCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "rollback <version>",
		Short:   "Make a registered version the current model",
		Example: `  shearguard rollback v1.0.0`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, kvOptional, func(a *app) error {
				res, err := a.orch.Rollback(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.printJSON(res)
			})
		},
	}
}

func newVersionsCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List registered model versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, kvOptional, func(a *app) error {
				versions, err := a.orch.ListVersions(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return c.printJSON(versions)
				}

				tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "VERSION\tSTATUS\tCREATED\tSAMPLES\tADDITIONAL\tR2\tOOB\tDESCRIPTION")
				for _, v := range versions {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.4f\t%.4f\t%s\n",
						v.Version, v.Status, v.CreatedAt.Format("2006-01-02 15:04:05"),
						v.TrainingSamples, v.AdditionalSamples, v.R2Score, v.OOBScore, v.Description)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newInfoCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the current model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, kvOptional, func(a *app) error {
				info, err := a.orch.CurrentModelInfo(cmd.Context())
				if err != nil {
					return err
				}
				return c.printJSON(info)
			})
		},
	}
}

func newResetCmd(c *cli) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Refit on the base dataset and discard all other versions",
		Long: `Refit the model on the base dataset alone, install it as the seed version
without consulting the validation gate, truncate the registry to that single
record and clear the additional samples. Version blobs on disk are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("reset discards the version history; pass --yes to confirm")
			}
			return c.withApp(cmd, kvOptional, func(a *app) error {
				res, err := a.orch.ResetToOrigin(cmd.Context())
				if err != nil {
					return err
				}
				return c.printJSON(res)
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
