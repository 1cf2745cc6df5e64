package storage

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/san-kum/flowline/internal/particle"
)

type ExportData struct {
	Run          *RunMetadata           `json:"run" msgpack:"run"`
	Trajectories []*particle.Trajectory `json:"trajectories" msgpack:"trajectories"`
}

// Export writes a stored run with its trajectories in format, "json" or
// "msgpack".
func (s *Store) Export(w io.Writer, runID, format string) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	trs, err := s.LoadTrajectories(runID)
	if err != nil {
		return err
	}
	data := ExportData{Run: meta, Trajectories: trs}

	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "msgpack":
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		return enc.Encode(data)
	}
	return fmt.Errorf("unknown export format: %s", format)
}
