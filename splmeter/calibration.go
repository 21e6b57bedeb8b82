package main

import (
	"fmt"
	"strconv"

	"github.com/itohio/gospl/pkg/calib"
	"github.com/spf13/cobra"
)

func newCalibrationCmd(global *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibration",
		Short: "Inspect or change the stored calibration offset",
	}

	openStore := func() (*calib.FileStore, error) {
		cfg, err := global.load()
		if err != nil {
			return nil, err
		}
		return calib.NewFileStore(cfg.Calibration.Path, cfg.Calibration.Address), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "print",
			Short: "Print the stored offset",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore()
				if err != nil {
					return err
				}
				rec, err := store.Load()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[INFO] CALIB_OFFSET = %s\n", rec)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Invalidate the stored offset",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := openStore()
				if err != nil {
					return err
				}
				if err := store.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "[OK] Calibration cleared.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "set OFFSET",
			Short: "Store a known offset (dB)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				offset, err := strconv.ParseFloat(args[0], 64)
				if err != nil {
					return fmt.Errorf("invalid offset %q: %w", args[0], err)
				}
				store, err := openStore()
				if err != nil {
					return err
				}
				if err := store.Save(offset); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[OK] Calibration saved. CALIB_OFFSET = %.4f\n", offset)
				return nil
			},
		},
	)
	return cmd
}
