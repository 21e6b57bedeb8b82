package console

import (
	"fmt"
	"io"
)

const helpText = `
Commands:
  c  - start calibration (measure, then enter reference SPL)
  s  - save current calibration
  r  - reset/clear calibration
  p  - print current calibration value

Calibration flow:
  1) Play a steady tone or noise and note the SPL on a reference meter.
  2) Type 'c' then Enter.
  3) After measurement, enter the reference SPL (e.g., 74.5) or 'skip'.
`

// PrintHelp writes the command summary to w.
func PrintHelp(w io.Writer) {
	fmt.Fprint(w, helpText+"\n")
}
