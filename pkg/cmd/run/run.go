package run

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/cmd/util"
	"github.com/mpapenbr/lapclock/pkg/config"
	"github.com/mpapenbr/lapclock/pkg/display"
	"github.com/mpapenbr/lapclock/pkg/processing"
	"github.com/mpapenbr/lapclock/pkg/utils/broadcast"
)

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "runs an interactive timing session",
		Long: `Runs an interactive timing session on the console.
Commands are read line by line from stdin, type 'help' for a list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
	return cmd
}

//nolint:funlen // by design
func runSession(ctx context.Context, in io.Reader, out io.Writer) error {
	util.SetupLogger(os.Stderr)
	log.Debug("Config:",
		log.String("store", config.StoreType),
		log.Duration("debounce", config.Debounce),
		log.Duration("lightDelay", config.LightDelay),
		log.Int("lights", config.Lights),
		log.Duration("refreshInterval", config.RefreshInterval))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := util.SetupTelemetry(ctx, os.Stderr)
	defer shutdownTelemetry()

	store, err := util.NewStore(ctx)
	if err != nil {
		log.Error("could not create snapshot store", log.ErrorField(err))
		return err
	}
	defer store.Close()

	proc := processing.NewProcessor(
		processing.WithStore(store),
		processing.WithConfig(config.FromFlags()))
	if err = proc.Load(ctx); err != nil {
		log.Error("could not load session", log.ErrorField(err))
		proc.Close()
		return err
	}

	views := broadcast.NewBroadcastServer("view", proc.Updates())
	term := display.NewTerminal(out, proc, display.WithInterval(config.RefreshInterval))
	var wg sync.WaitGroup
	wg.Add(1)
	sub := views.Subscribe()
	go func() {
		defer wg.Done()
		term.Follow(ctx, sub)
	}()
	term.Show(proc.View())
	fmt.Fprintln(out, "type 'help' for a list of commands")

	console := NewConsole(proc, out)
	lines := readLines(ctx, in)
loop:
	for {
		select {
		case <-ctx.Done():
			log.Debug("session interrupted")
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			quit, cmdErr := console.Execute(ctx, line)
			if cmdErr != nil {
				fmt.Fprintf(out, "error: %v\n", cmdErr)
			}
			if quit {
				break loop
			}
		}
	}

	proc.Close()
	views.Close()
	wg.Wait()
	log.Info("Session ended")
	return nil
}

// readLines delivers the lines of r. The channel is closed on EOF.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	ret := make(chan string)
	go func() {
		defer close(ret)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case ret <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ret
}
