// splmeter is the headless sound level meter: it monitors the microphone,
// prints periodic level lines and accepts calibration commands on stdin or a
// serial console.
package main

import (
	"fmt"
	"os"

	"github.com/itohio/gospl/pkg/config"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	port       string
	source     string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "splmeter",
		Short: "Approximate sound level meter",
		Long: `splmeter estimates the sound pressure level seen by an analog microphone.

Without calibration it reports the level relative to ADC full scale (dBFS).
Calibrate against a reference meter with the 'c' command while running to
get an SPL estimate; the offset is kept in the calibration storage file.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "config.yaml", "configuration file path")
	root.PersistentFlags().StringVarP(&flags.port, "port", "p", "", "serial port override for the firmware link")
	root.PersistentFlags().StringVar(&flags.source, "source", "", "microphone source override (mock, serial, ads1115)")

	root.AddCommand(
		newRunCmd(flags),
		newCalibrationCmd(flags),
		newPortsCmd(),
	)
	return root
}

// load reads the configuration and applies flag overrides.
func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.port != "" {
		cfg.Serial.Port = f.port
	}
	if f.source != "" {
		cfg.Source = f.source
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
