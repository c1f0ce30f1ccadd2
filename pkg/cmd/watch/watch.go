package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/lapclock/log"
	"github.com/mpapenbr/lapclock/pkg/cmd/util"
	"github.com/mpapenbr/lapclock/pkg/config"
	"github.com/mpapenbr/lapclock/pkg/display"
	"github.com/mpapenbr/lapclock/pkg/model"
	"github.com/mpapenbr/lapclock/pkg/processing"
	"github.com/mpapenbr/lapclock/pkg/repository/snapshot"
)

var ErrFileStoreRequired = errors.New("watch requires the file store")

func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "follows the session stored in a snapshot file",
		Long: `Follows the session stored in a snapshot file and prints the ranking
whenever the file changes. Another process (lapclock run --store file)
owns the session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			util.SetupLogger(os.Stderr)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchSession(ctx, os.Stdout)
		},
	}
	return cmd
}

func watchSession(ctx context.Context, out io.Writer) error {
	if snapshot.StoreType(config.StoreType) != snapshot.TypeFile {
		return ErrFileStoreRequired
	}
	store, err := snapshot.NewFileStore(config.StoreFile)
	if err != nil {
		return err
	}
	defer store.Close()
	f := NewFollower(store, func(state *model.State) {
		fmt.Fprintln(out)
		if state == nil {
			fmt.Fprintln(out, "no stored session")
			return
		}
		if err := display.Render(out, processing.SnapshotView(state)); err != nil {
			log.Warn("could not render session", log.ErrorField(err))
		}
	})
	return f.Run(ctx)
}

// Follower reports the content of a file store whenever the file changes.
type Follower struct {
	store    *snapshot.FileStore
	onChange func(state *model.State) // nil if the snapshot was removed
	log      *log.Logger
}

func NewFollower(store *snapshot.FileStore, onChange func(*model.State)) *Follower {
	return &Follower{
		store:    store,
		onChange: onChange,
		log:      log.Default().Named("watch"),
	}
}

// Run reports the current content and then every change until ctx is done.
// The directory of the file is watched since the file is replaced on
// every save.
//
//nolint:cyclop // by design
func (f *Follower) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	dir := filepath.Dir(f.store.Path())
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("could not watch %s: %w", dir, err)
	}
	f.log.Info("Watching snapshot", log.String("file", f.store.Path()))
	f.report(ctx)

	name := filepath.Clean(f.store.Path())
	for {
		select {
		case <-ctx.Done():
			f.log.Debug("context done, stopping watch")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			f.log.Debug("change detected",
				log.String("file", event.Name), log.String("op", event.Op.String()))
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) {
				f.report(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.Error("watcher error", log.ErrorField(err))
		}
	}
}

func (f *Follower) report(ctx context.Context) {
	state, err := f.store.Load(ctx)
	switch {
	case errors.Is(err, snapshot.ErrSnapshotNotFound):
		f.onChange(nil)
	case errors.Is(err, snapshot.ErrMalformedSnapshot):
		// a partially written file, the next event brings the complete one
		f.log.Debug("snapshot not readable yet", log.ErrorField(err))
	case err != nil:
		f.log.Warn("could not load snapshot", log.ErrorField(err))
	default:
		f.onChange(state)
	}
}
