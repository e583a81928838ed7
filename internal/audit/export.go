package audit

import (
	"bytes"
	"encoding/csv"
	"time"
)

var csvHeader = []string{"occurred_at", "actor_id", "actor_name", "action", "resource_type", "resource_id", "before", "after"}

// WriteCSV encodes entries as CSV with a header row.
func WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		record := []string{
			e.At.UTC().Format(time.RFC3339),
			e.ActorID.String(),
			e.ActorName,
			e.Action,
			e.ResourceType,
			e.ResourceID,
			string(e.Before),
			string(e.After),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
