// Shearguard - Beam Shear Strength Model Lifecycle Manager
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shearguard

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/shearguard/internal/dataset"
	"github.com/tomtom215/shearguard/internal/predict"
	"github.com/tomtom215/shearguard/internal/submissions"
)

func newPredictCmd(c *cli) *cobra.Command {
	var inputPath string
	values := make(map[string]*float64, len(dataset.FeatureNames))

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict shear strength (V_Kn) for one beam",
		Long: `Predict shear strength with the current model. Features come from a JSON
object (--input, "-" for stdin) or from one flag per feature; flags override
the file.`,
		Example: `  shearguard predict --h_mm 500 --d_mm 450 --b_mm 300 --a_mm 1200 --abyd 2.67 \
    --fck_Mpa 35 --rho 0.02 --fyk_Mpa 500 --da_mm 20 --Plate_Top_mm 100 --Plate_Bottom_mm 100
  echo '{"h_mm":500,...}' | shearguard predict --input -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in predict.Input
			if inputPath != "" {
				if err := readJSONInput(cmd, inputPath, &in); err != nil {
					return err
				}
			}
			for _, name := range dataset.FeatureNames {
				if cmd.Flags().Changed(name) {
					v := *values[name]
					setFeature(&in, name, v)
				}
			}

			return c.withApp(cmd, kvOptional, func(a *app) error {
				out, err := a.predictor.Predict(cmd.Context(), &in)
				if err != nil {
					return err
				}
				return c.printJSON(out)
			})
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", `JSON file with the features, or "-" for stdin`)
	for _, name := range dataset.FeatureNames {
		values[name] = cmd.Flags().Float64(name, 0, name)
	}
	return cmd
}

// setFeature assigns one named feature.
func setFeature(in *predict.Input, name string, v float64) {
	p := &v
	switch name {
	case "h_mm":
		in.HMM = p
	case "d_mm":
		in.DMM = p
	case "b_mm":
		in.BMM = p
	case "a_mm":
		in.AMM = p
	case "abyd":
		in.AByD = p
	case "fck_Mpa":
		in.FckMpa = p
	case "rho":
		in.Rho = p
	case "fyk_Mpa":
		in.FykMpa = p
	case "da_mm":
		in.DaMM = p
	case "Plate_Top_mm":
		in.PlateTopMM = p
	case "Plate_Bottom_mm":
		in.PlateBottomMM = p
	}
}

func readJSONInput(cmd *cobra.Command, path string, v interface{}) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path) //nolint:gosec // operator-supplied input file
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func newAddSamplesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "add-samples <file>",
		Short: "Append validated samples to the additional training data",
		Long: `Append a JSON array of samples to the additional training data. Every
sample is validated before anything is written. The next retrain uses them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := dataset.ReadSamplesFile(args[0])
			if err != nil {
				return err
			}
			loader := dataset.NewLoader(c.cfg.Dataset.BasePath, c.cfg.Dataset.AdditionalPath)
			total, err := loader.AppendAdditional(cmd.Context(), samples...)
			if err != nil {
				return err
			}
			return c.printJSON(map[string]int{"added": len(samples), "pending": total})
		},
	}
}

func newAttemptsCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Show recent retrain, rollback and reset attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, kvRequired, func(a *app) error {
				attempts, err := a.journal.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return c.printJSON(attempts)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of attempts to show, 0 for all")
	return cmd
}

func newSubmissionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "List and review research submissions",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, kvRequired, func(a *app) error {
				q, err := a.requireQueue()
				if err != nil {
					return err
				}
				subs, err := q.List(cmd.Context(), submissions.Status(status))
				if err != nil {
					return err
				}
				return c.printJSON(subs)
			})
		},
	}
	list.Flags().StringVar(&status, "status", string(submissions.StatusPending), "pending, approved, rejected or empty for all")

	var reviewer string
	review := func(use string, approve bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <id>",
			Short: use + " a pending submission",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd, kvRequired, func(a *app) error {
					q, err := a.requireQueue()
					if err != nil {
						return err
					}
					sub, err := q.Review(cmd.Context(), args[0], approve, reviewer)
					if err != nil {
						return err
					}
					return c.printJSON(sub)
				})
			},
		}
	}
	approveCmd := review("approve", true)
	rejectCmd := review("reject", false)
	for _, sc := range []*cobra.Command{approveCmd, rejectCmd} {
		sc.Flags().StringVar(&reviewer, "reviewer", os.Getenv("USER"), "name recorded as the reviewer")
	}

	cmd.AddCommand(list, approveCmd, rejectCmd)
	return cmd
}
