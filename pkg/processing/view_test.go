package processing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/lapclock/pkg/model"
	"github.com/mpapenbr/lapclock/testsupport/basedata"
)

func TestSnapshotView(t *testing.T) {
	s := basedata.SampleState()
	v := SnapshotView(s)

	assert.Equal(t, s.ID, v.SessionID)
	assert.Equal(t, "01:35.500", v.FormattedTime)
	assert.Equal(t, model.StatusPaused, v.Status)
	assert.Len(t, v.Participants, 3)
	require.Len(t, v.Ranking, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{
		v.Ranking[0].ParticipantID, v.Ranking[1].ParticipantID, v.Ranking[2].ParticipantID,
	})
	require.NotNil(t, v.GlobalBest)
	assert.Equal(t, 30500*time.Millisecond, *v.GlobalBest)

	// the view holds copies
	v.Participants[0].Laps[0] = 0
	assert.Equal(t, 31*time.Second, s.Participants[0].Laps[0])
}
