package console

import (
	"bufio"
	"context"
	"io"
	"log"
	"strings"
)

// DefaultLineBuffer is the capacity of the channel returned by ReadLines.
const DefaultLineBuffer = 16

// ReadLines scans newline-terminated commands from r in a goroutine.
// Lines are trimmed of surrounding whitespace and carriage returns.
// The channel is closed on EOF, read error or context cancellation.
func ReadLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string, DefaultLineBuffer)

	go func() {
		defer close(out)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.Printf("Command input error: %v", err)
		}
	}()

	return out
}
