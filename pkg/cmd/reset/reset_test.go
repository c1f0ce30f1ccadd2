package reset

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/lapclock/pkg/config"
	"github.com/mpapenbr/lapclock/pkg/repository/snapshot"
	"github.com/mpapenbr/lapclock/testsupport/basedata"
)

func TestResetSession(t *testing.T) {
	ctx := context.Background()
	config.StoreType = string(snapshot.TypeFile)
	config.StoreFile = filepath.Join(t.TempDir(), "snapshot.json")
	defer func() { config.StoreType, config.StoreFile = "", "" }()

	store, err := snapshot.NewFileStore(config.StoreFile)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, basedata.SampleState()))

	require.NoError(t, resetSession(ctx))
	_, err = store.Load(ctx)
	assert.True(t, errors.Is(err, snapshot.ErrSnapshotNotFound))

	require.NoError(t, resetSession(ctx), "resetting twice")
}
