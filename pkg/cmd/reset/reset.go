package reset

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/cmd/util"
)

func NewResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "removes the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			util.SetupLogger(os.Stderr)
			return resetSession(cmd.Context())
		},
	}
	return cmd
}

func resetSession(ctx context.Context) error {
	store, err := util.NewStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Clear(ctx); err != nil {
		log.Error("could not clear stored session", log.ErrorField(err))
		return err
	}
	log.Info("Stored session removed")
	return nil
}
