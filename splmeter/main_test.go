package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/itohio/gospl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) (configPath, calibPath string) {
	t.Helper()
	dir := t.TempDir()
	calibPath = filepath.Join(dir, "calibration.eeprom")
	configPath = filepath.Join(dir, "config.yaml")
	data := fmt.Sprintf("source: mock\ncalibration:\n  path: %s\n", calibPath)
	require.NoError(t, os.WriteFile(configPath, []byte(data), 0644))
	return configPath, calibPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	root := newRootCmd()
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCalibrationCommands(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := execute(t, "calibration", "print", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "[INFO] CALIB_OFFSET = not set\n", out)

	out, err = execute(t, "calibration", "set", "114.7", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "[OK] Calibration saved. CALIB_OFFSET = 114.7000\n", out)

	out, err = execute(t, "calibration", "print", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "CALIB_OFFSET = 114.7")

	out, err = execute(t, "calibration", "clear", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "[OK] Calibration cleared.\n", out)

	out, err = execute(t, "calibration", "print", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "not set")
}

func TestCalibrationSet_Rejects(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := execute(t, "calibration", "set", "abc", "--config", cfgPath)
	assert.Error(t, err)

	_, err = execute(t, "calibration", "set", "500", "--config", cfgPath)
	assert.Error(t, err)
}

func TestGlobalFlags_Overrides(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	cfg, err := (&globalFlags{configPath: cfgPath, port: "/dev/ttyACM1", source: "serial"}).load()
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Port)
	assert.Equal(t, config.SourceSerial, cfg.Source)

	_, err = (&globalFlags{configPath: cfgPath, source: "tape"}).load()
	assert.Error(t, err)
}

func TestRunMeter_Mock(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	cfg, err := (&globalFlags{configPath: cfgPath}).load()
	require.NoError(t, err)
	cfg.Display.LogInterval = 0
	cfg.Sampling.Window = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out := &bytes.Buffer{}
	err = runMeter(ctx, cfg, &runFlags{}, strings.NewReader("p\n"), out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "[INFO] No valid calibration in storage.")
	assert.Contains(t, text, "[INFO] CALIB_OFFSET = not set")
	assert.Contains(t, text, "SPL: N/A (not calibrated)")
}

func TestRunMeter_StartupErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config, flags *runFlags)
		wantErr string
	}{
		{
			name: "console port missing",
			mutate: func(cfg *config.Config, flags *runFlags) {
				flags.consolePort = filepath.Join(t.TempDir(), "ttyNone")
			},
			wantErr: "failed to open console port",
		},
		{
			name: "OLED without addresses",
			mutate: func(cfg *config.Config, flags *runFlags) {
				cfg.OLED.Enabled = true
				cfg.OLED.Addresses = nil
			},
			wantErr: "failed to initialize OLED",
		},
		{
			name: "firmware port missing",
			mutate: func(cfg *config.Config, flags *runFlags) {
				cfg.Source = config.SourceSerial
				cfg.Serial.Port = filepath.Join(t.TempDir(), "ttyNone")
			},
			wantErr: "failed to start meter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath, _ := writeConfig(t)
			cfg, err := (&globalFlags{configPath: cfgPath}).load()
			require.NoError(t, err)
			flags := &runFlags{consoleBaud: 115200}
			tt.mutate(cfg, flags)

			err = runMeter(context.Background(), cfg, flags, strings.NewReader(""), &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOpenSinks_ClosesOnError(t *testing.T) {
	cfg := config.Default()
	cfg.OLED.Enabled = true
	cfg.OLED.Addresses = nil

	sinks, closeSinks, err := openSinks(cfg, &bytes.Buffer{})
	assert.Error(t, err)
	assert.Nil(t, sinks)
	assert.Nil(t, closeSinks)

	cfg.OLED.Enabled = false
	sinks, closeSinks, err = openSinks(cfg, &bytes.Buffer{})
	require.NoError(t, err)
	assert.NotNil(t, sinks)
	closeSinks()
}
