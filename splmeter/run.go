package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/gospl/pkg/config"
	"github.com/itohio/gospl/pkg/console"
	"github.com/itohio/gospl/pkg/display"
	"github.com/itohio/gospl/pkg/session"
	"github.com/spf13/cobra"
	"go.bug.st/serial"
)

type runFlags struct {
	consolePort string
	consoleBaud int
}

func newRunCmd(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Monitor the sound level and accept calibration commands",
		Long: `run measures the level continuously and prints it every display.log_interval.

Commands are read line by line from stdin, or from --console-port when set:
  c  calibrate, s  save, r  reset, p  print`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMeter(ctx, cfg, flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.consolePort, "console-port", "", "serial port for the operator console (default stdin/stdout)")
	cmd.Flags().IntVar(&flags.consoleBaud, "console-baud", 115200, "operator console baud rate")
	return cmd
}

// runMeter wires sinks, the session and the operator console, then runs
// until ctx is canceled. Missing hardware is returned after everything
// already opened has been closed.
func runMeter(ctx context.Context, cfg *config.Config, flags *runFlags, in io.Reader, out io.Writer) error {
	if flags.consolePort != "" {
		port, err := serial.Open(flags.consolePort, &serial.Mode{BaudRate: flags.consoleBaud})
		if err != nil {
			return fmt.Errorf("failed to open console port %s: %w", flags.consolePort, err)
		}
		defer port.Close()
		in = port
		out = io.MultiWriter(out, port)
	}

	sinks, closeSinks, err := openSinks(cfg, out)
	if err != nil {
		return err
	}
	defer closeSinks()

	s, err := session.Open(cfg, out, console.WithAnnouncer(sinks))
	if err != nil {
		return fmt.Errorf("failed to start meter: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("%v", err)
		}
	}()
	display.Attach(s.Meter, sinks)

	if err := s.Run(ctx, console.ReadLines(ctx, in)); err != nil {
		return fmt.Errorf("meter stopped: %w", err)
	}
	return nil
}

// openSinks creates the log sink and the optional OLED and MQTT sinks.
// On error the sinks opened so far are closed.
func openSinks(cfg *config.Config, out io.Writer) (*display.Multi, func(), error) {
	sinks := display.NewMulti(display.NewLogSink(out, cfg.Display.LogInterval))
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Printf("%v", err)
			}
		}
	}

	if cfg.OLED.Enabled {
		oled, err := display.OpenOLED(cfg.OLED)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to initialize OLED: %w", err)
		}
		if err := oled.Splash(); err != nil {
			log.Printf("Failed to show splash: %v", err)
		}
		sinks.Add(oled)
		closers = append(closers, oled)
	}

	if cfg.MQTT.Broker != "" {
		pub, err := display.DialMQTT(cfg.MQTT)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to start MQTT publisher: %w", err)
		}
		sinks.Add(pub)
		closers = append(closers, pub)
	}

	return sinks, closeAll, nil
}
