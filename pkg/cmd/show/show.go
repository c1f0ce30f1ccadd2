package show

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/cmd/util"
	"github.com/mpapenbr/lapclock/pkg/display"
	"github.com/mpapenbr/lapclock/pkg/processing"
	"github.com/mpapenbr/lapclock/pkg/repository/snapshot"
)

func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "prints the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			util.SetupLogger(os.Stderr)
			return showSession(cmd.Context(), os.Stdout)
		},
	}
	return cmd
}

func showSession(ctx context.Context, out io.Writer) error {
	store, err := util.NewStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	state, err := store.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrSnapshotNotFound):
		fmt.Fprintln(out, "no stored session")
		return nil
	case errors.Is(err, snapshot.ErrMalformedSnapshot):
		log.Warn("stored session is malformed", log.ErrorField(err))
	case err != nil:
		return err
	}
	return display.Render(out, processing.SnapshotView(state))
}
