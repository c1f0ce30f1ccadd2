package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/renameio/v2"

	"github.com/mpapenbr/lapclock/pkg/model"
)

type LapRow struct {
	Name       string
	LapIndex   int // 1-based
	Lap        time.Duration
	Cumulative time.Duration // running total including this lap
}

var csvHeader = []string{
	"driver", "lap_index", "lap_ms", "lap_fmt", "sum_ms_after", "sum_fmt_after",
}

// Laps lists every completed lap of the given participants,
// in participant order then lap order.
func Laps(participants []*model.Participant) []LapRow {
	ret := make([]LapRow, 0)
	for _, p := range participants {
		var sum time.Duration
		for i, lap := range p.Laps {
			sum += lap
			ret = append(ret, LapRow{
				Name:       p.Name,
				LapIndex:   i + 1,
				Lap:        lap,
				Cumulative: sum,
			})
		}
	}
	return ret
}

// FormatDuration renders d as mm:ss.mmm. Minutes are not wrapped into hours.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, (ms%60000)/1000, ms%1000)
}

func WriteCSV(w io.Writer, rows []LapRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Name,
			strconv.Itoa(r.LapIndex),
			strconv.FormatInt(r.Lap.Milliseconds(), 10),
			FormatDuration(r.Lap),
			strconv.FormatInt(r.Cumulative.Milliseconds(), 10),
			FormatDuration(r.Cumulative),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the CSV atomically to path
func WriteFile(path string, rows []LapRow) error {
	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending export file: %w", err)
	}
	//nolint:errcheck // removes the temp file if not committed
	defer pendingFile.Cleanup()

	if err := WriteCSV(pendingFile, rows); err != nil {
		return fmt.Errorf("write export data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace export file: %w", err)
	}
	return nil
}
