package export

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/cmd/util"
	laps "github.com/mpapenbr/lapclock/pkg/processing/export"
	"github.com/mpapenbr/lapclock/pkg/repository/snapshot"
)

var outFile string

func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "writes the laps of the stored session as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			util.SetupLogger(os.Stderr)
			return exportLaps(cmd.Context(), outFile, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&outFile,
		"out",
		"o",
		"laps.csv",
		"CSV output file, '-' writes to stdout")
	return cmd
}

func exportLaps(ctx context.Context, file string, stdout io.Writer) error {
	store, err := util.NewStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	state, err := store.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrMalformedSnapshot):
		log.Warn("stored session is malformed", log.ErrorField(err))
	case err != nil:
		return err
	}
	rows := laps.Laps(state.Active())
	if file == "-" {
		return laps.WriteCSV(stdout, rows)
	}
	if err := laps.WriteFile(file, rows); err != nil {
		return err
	}
	log.Info("Laps exported", log.String("file", file), log.Int("laps", len(rows)))
	return nil
}
