package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
)

// CSVHeader is the first row written by WriteCSV.
var CSVHeader = []string{"timestamp", "cycle_id", "trigger", "phase", "action", "order", "vehicle", "target", "costs", "reasons", "error"}

// WriteJSON writes one decision log record per line.
func WriteJSON(w io.Writer, recs []logging.LogRecord) error {
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes one row per decision. A record without decisions, e.g. a
// failed unit, still gets a row carrying its error.
func WriteCSV(w io.Writer, recs []logging.LogRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range recs {
		head := []string{r.Timestamp.UTC().Format(time.RFC3339Nano), r.CycleID, r.Trigger}
		if len(r.Decisions) == 0 {
			if err := cw.Write(append(head, "", "", "", "", "", "", "", r.Error)); err != nil {
				return err
			}
			continue
		}
		for _, d := range r.Decisions {
			row := append(append([]string(nil), head...),
				d.Phase,
				d.Action,
				d.Order,
				d.Vehicle,
				d.Target,
				strconv.FormatFloat(d.Costs, 'f', -1, 64),
				strings.Join(d.Reasons, ";"),
				r.Error,
			)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
