//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_US = 200 // 5 kHz, matches sampling.sample_rate on the host
	BATCH_SIZE         = 16  // readings per output line

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Microphone module analog output
	PIN_MIC = machine.A0

	// Serial configuration
	// Line format: "r0,r1,...,r15\n", at most 16*5 = 80 bytes.
	// 5000 readings/s / 16 = 313 lines/s * 80 bytes = ~25 kB/s.
	// That exceeds a 115200 baud UART, so the stream goes over USB CDC where
	// the baud rate is nominal.
	SERIAL_BAUD_RATE = 115200
)
