package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/model"
	"github.com/mpapenbr/lapclock/pkg/processing"
	"github.com/mpapenbr/lapclock/pkg/processing/export"
)

const DefaultExportFile = "laps.csv"

var errUsage = errors.New("usage")

const help = `commands:
  start | enter | <empty line>   start sequence
  pause | resume | space         session clock
  1..4                           lap for participant
  lap                            lap for the active participant
  tab | next                     select next active participant
  active N                       select active participant
  drivers N                      number of participants (1..4)
  name ID NAME                   rename participant
  sc | s, vsc | v                toggle flags
  export [FILE] | e [FILE]       write laps as CSV
  reset | r                      hard reset
  help | quit`

// Console maps text commands to processor commands
type Console struct {
	proc *processing.Processor
	out  io.Writer
	log  *log.Logger
}

func NewConsole(proc *processing.Processor, out io.Writer) *Console {
	return &Console{
		proc: proc,
		out:  out,
		log:  log.Default().Named("console"),
	}
}

// Execute runs a single command line. Returns true if the session should end.
//
//nolint:funlen,cyclop // by design
func (c *Console) Execute(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		c.start(ctx)
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	c.log.Debug("command", log.String("cmd", cmd), log.Strings("args", args))
	switch cmd {
	case "start", "enter":
		c.start(ctx)
	case "pause":
		c.proc.Pause(ctx)
	case "resume":
		c.proc.Resume(ctx)
	case "space", "toggle":
		c.proc.TogglePause(ctx)
	case "tab", "next":
		c.proc.NextActiveParticipant(ctx)
	case "1", "2", "3", "4":
		id, _ := strconv.Atoi(cmd)
		err = c.proc.RegisterLap(ctx, id)
		if errors.Is(err, processing.ErrParticipantInactive) {
			fmt.Fprintf(c.out, "participant %d is not active\n", id)
			err = nil
		}
	case "lap":
		err = c.proc.RegisterActiveLap(ctx)
	case "active":
		var n int
		if n, err = intArg(args); err == nil {
			err = c.proc.SetActiveParticipant(ctx, n)
		}
	case "drivers":
		var n int
		if n, err = intArg(args); err == nil {
			err = c.proc.SetActiveCount(ctx, n)
		}
	case "name":
		err = c.rename(ctx, args)
	case "sc", "s":
		err = c.proc.ToggleFlag(ctx, model.FlagSafetyCar)
	case "vsc", "v":
		err = c.proc.ToggleFlag(ctx, model.FlagVirtualSafetyCar)
	case "export", "e":
		err = c.export(args)
	case "reset", "r":
		c.proc.HardReset(ctx)
	case "help", "?":
		fmt.Fprintln(c.out, help)
	case "quit", "exit", "q":
		return true, nil
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	return false, err
}

func (c *Console) start(ctx context.Context) {
	if !c.proc.Start(ctx) {
		fmt.Fprintln(c.out, "session is already running or starting")
	}
}

func (c *Console) rename(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: name ID NAME", errUsage)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: name ID NAME", errUsage)
	}
	return c.proc.Rename(ctx, id, strings.Join(args[1:], " "))
}

func (c *Console) export(args []string) error {
	file := DefaultExportFile
	if len(args) > 0 {
		file = args[0]
	}
	rows := c.proc.ExportLaps()
	if err := export.WriteFile(file, rows); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "exported %d laps to %s\n", len(rows), file)
	return nil
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected one number", errUsage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errUsage, args[0])
	}
	return n, nil
}
