//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"strconv"
	"time"
)

var (
	adcMic machine.ADC
	serial = machine.Serial

	// Output line buffer, reused for every batch
	line  [BATCH_SIZE * 5]byte
	batch int
	pos   int
)

func main() {
	PIN_MIC.Configure(machine.PinConfig{Mode: machine.PinInput})

	adcMic = machine.ADC{Pin: PIN_MIC}
	adcMic.Configure(machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	})

	serial.Configure(machine.UARTConfig{
		BaudRate: SERIAL_BAUD_RATE,
	})

	interval := time.Duration(SAMPLE_INTERVAL_US) * time.Microsecond
	next := time.Now()

	for {
		now := time.Now()
		if now.Before(next) {
			continue
		}
		next = next.Add(interval)
		// fell behind, e.g. while the host was not reading: do not burst
		if now.Sub(next) > interval {
			next = now.Add(interval)
		}

		appendReading(readMic())
		if batch == BATCH_SIZE {
			flush()
		}
	}
}

// readMic returns the microphone level in ADC_RESOLUTION bits.
// machine.ADC.Get scales every converter to 16 bits.
func readMic() uint16 {
	return adcMic.Get() >> (16 - ADC_RESOLUTION)
}

func appendReading(v uint16) {
	if batch > 0 {
		line[pos] = ','
		pos++
	}
	pos += len(strconv.AppendUint(line[pos:pos], uint64(v), 10))
	batch++
}

func flush() {
	line[pos] = '\n'
	serial.Write(line[:pos+1])
	batch = 0
	pos = 0
}
