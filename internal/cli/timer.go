//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mymmsc/reactor"
)

// tickerFD is the table slot of the ticker. Pure timers need a number no IO
// event uses; descriptor 0 is stdin, which netcat only watches through a
// duplicate.
const tickerFD = 0

func TimerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Run a re-arming timer and print each tick",
		RunE:  handleTimer,
	}
	cmd.Flags().Duration("interval", time.Second, "time between ticks")
	cmd.Flags().Int("count", 5, "number of ticks, 0 runs until interrupted")
	return cmd
}

func handleTimer(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	ev := newTicker(cmd.OutOrStdout(), a.Cfg.Timer.Interval, a.Cfg.Timer.Count)
	if err := a.Loop.Add(ev); err != nil {
		_ = a.Close()
		return err
	}
	return runApp(cmd, a)
}

// newTicker returns a timer event that prints a line per tick and re-arms
// itself; after count ticks it aborts the loop.
func newTicker(out io.Writer, interval time.Duration, count int) *reactor.Event {
	n := 0
	start := time.Now()
	ev := &reactor.Event{Fd: tickerFD, Events: reactor.Timer, Timeout: interval}
	ev.Callback = func(l *reactor.Loop, ev *reactor.Event) int {
		n++
		fmt.Fprintf(out, "tick %d +%s\n", n, time.Since(start).Round(time.Millisecond))
		if count > 0 && n >= count {
			return reactor.Abort
		}
		if err := l.Add(ev); err != nil {
			return reactor.Abort
		}
		return 0
	}
	return ev
}
