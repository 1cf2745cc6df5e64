// Package storage keeps finished runs on disk, one directory per run.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/flowline/internal/analysis"
	"github.com/san-kum/flowline/internal/config"
	"github.com/san-kum/flowline/internal/dynamo"
	"github.com/san-kum/flowline/internal/metrics"
	"github.com/san-kum/flowline/internal/particle"
	"github.com/san-kum/flowline/internal/sim"
)

const (
	metadataFile     = "metadata.json"
	trajectoriesFile = "trajectories.csv"
	ftleFile         = "ftle.csv"
	puncturesFile    = "punctures.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Run is everything Save persists.
type Run struct {
	Config    *config.Config
	Result    *sim.Result
	FTLE      *analysis.FTLEField
	Punctures []analysis.Puncture
	Windings  []analysis.WindingResult
}

type RunMetadata struct {
	ID           string                   `json:"id"`
	Field        string                   `json:"field"`
	Timestamp    time.Time                `json:"timestamp"`
	Status       sim.Status               `json:"status"`
	Scheme       string                   `json:"scheme"`
	Strategy     string                   `json:"strategy"`
	Trajectories int                      `json:"trajectories"`
	Rounds       int                      `json:"rounds"`
	Migrations   int                      `json:"migrations"`
	Messages     int                      `json:"messages"`
	Metrics      map[string]float64       `json:"metrics"`
	Warnings     []dynamo.Warning         `json:"warnings,omitempty"`
	FTLE         *FTLEInfo                `json:"ftle,omitempty"`
	Punctures    int                      `json:"punctures,omitempty"`
	Windings     []analysis.WindingResult `json:"windings,omitempty"`
	Config       *config.Config           `json:"config"`
}

// FTLEInfo describes the stored ftle.csv grid.
type FTLEInfo struct {
	Measure analysis.Measure `json:"measure"`
	Dims    [3]int           `json:"dims"`
	Max     float64          `json:"max"`
}

// Save writes run under the run id of its result and returns that id.
func (s *Store) Save(run Run) (string, error) {
	res := run.Result
	if res == nil || run.Config == nil {
		return "", fmt.Errorf("storage: run needs a config and a result")
	}
	runID := res.RunID
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:           runID,
		Field:        run.Config.Field.Name,
		Timestamp:    time.Now(),
		Status:       res.Status,
		Scheme:       run.Config.Integration.Scheme,
		Strategy:     string(res.Strategy),
		Trajectories: len(res.Trajectories),
		Rounds:       res.Rounds,
		Migrations:   res.Migrations,
		Messages:     res.Messages,
		Metrics:      metrics.Summarize(res.Trajectories, metrics.Defaults()),
		Warnings:     res.Warnings,
		Punctures:    len(run.Punctures),
		Windings:     run.Windings,
		Config:       run.Config,
	}
	if run.FTLE != nil {
		meta.FTLE = &FTLEInfo{Measure: run.FTLE.Measure, Dims: run.FTLE.Dims, Max: run.FTLE.Max()}
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, trajectoriesFile), trajectoryRows(res.Trajectories)); err != nil {
		return "", err
	}
	if run.FTLE != nil {
		if err := writeCSV(filepath.Join(runDir, ftleFile), ftleRows(run.FTLE)); err != nil {
			return "", err
		}
	}
	if len(run.Punctures) > 0 {
		if err := writeCSV(filepath.Join(runDir, puncturesFile), punctureRows(run.Punctures)); err != nil {
			return "", err
		}
	}
	return runID, nil
}

// List returns the stored runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

var trajectoryHeader = []string{"particle_id", "seed_id", "direction", "reason", "index", "time", "x", "y", "z", "speed"}

func trajectoryRows(trs []*particle.Trajectory) [][]string {
	rows := [][]string{trajectoryHeader}
	for _, tr := range trs {
		id := strconv.FormatInt(tr.ParticleID, 10)
		seedID := strconv.Itoa(tr.SeedID)
		dir := tr.Direction.String()
		reason := tr.Reason.String()
		for i, p := range tr.Points {
			rows = append(rows, []string{
				id, seedID, dir, reason, strconv.Itoa(i),
				formatFloat(p.Time),
				formatFloat(p.Position[0]), formatFloat(p.Position[1]), formatFloat(p.Position[2]),
				formatFloat(p.Scalar),
			})
		}
	}
	return rows
}

// LoadTrajectories reads trajectories.csv back, ordered by particle id.
func (s *Store) LoadTrajectories(runID string) ([]*particle.Trajectory, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, trajectoriesFile), len(trajectoryHeader))
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*particle.Trajectory)
	reasons := make(map[int64]particle.Reason)
	var order []int64
	for line, rec := range records {
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", trajectoriesFile, line+2, err)
		}
		tr, ok := byID[id]
		if !ok {
			seedID, err := strconv.Atoi(rec[1])
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", trajectoriesFile, line+2, err)
			}
			dir, err := dynamo.ParseDirection(rec[2])
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", trajectoriesFile, line+2, err)
			}
			reason, err := particle.ParseReason(rec[3])
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", trajectoriesFile, line+2, err)
			}
			tr = &particle.Trajectory{ParticleID: id, SeedID: seedID, Direction: dir}
			byID[id] = tr
			reasons[id] = reason
			order = append(order, id)
		}
		v, err := parseFloats(rec[5:])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", trajectoriesFile, line+2, err)
		}
		if err := tr.Append(particle.Point{Time: v[0], Position: dynamo.Vec3{v[1], v[2], v[3]}, Scalar: v[4]}); err != nil {
			return nil, err
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]*particle.Trajectory, len(order))
	for i, id := range order {
		byID[id].Finalize(reasons[id])
		out[i] = byID[id]
	}
	return out, nil
}

var ftleHeader = []string{"i", "j", "k", "x", "y", "z", "value"}

func ftleRows(f *analysis.FTLEField) [][]string {
	rows := [][]string{ftleHeader}
	for k := 0; k < f.Dims[2]; k++ {
		for j := 0; j < f.Dims[1]; j++ {
			for i := 0; i < f.Dims[0]; i++ {
				o := f.Origins[i+f.Dims[0]*(j+f.Dims[1]*k)]
				rows = append(rows, []string{
					strconv.Itoa(i), strconv.Itoa(j), strconv.Itoa(k),
					formatFloat(o[0]), formatFloat(o[1]), formatFloat(o[2]),
					formatFloat(f.At(i, j, k)),
				})
			}
		}
	}
	return rows
}

// LoadFTLE reads ftle.csv back using the grid recorded in the metadata.
func (s *Store) LoadFTLE(runID string) (*analysis.FTLEField, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	if meta.FTLE == nil {
		return nil, fmt.Errorf("run %s has no ftle field", runID)
	}
	records, err := readCSV(filepath.Join(s.baseDir, runID, ftleFile), len(ftleHeader))
	if err != nil {
		return nil, err
	}

	dims := meta.FTLE.Dims
	n := dims[0] * dims[1] * dims[2]
	if len(records) != n {
		return nil, fmt.Errorf("%s: expected %d nodes, got %d", ftleFile, n, len(records))
	}
	f := &analysis.FTLEField{
		Measure: meta.FTLE.Measure,
		Dims:    dims,
		Origins: make([]dynamo.Vec3, n),
		Values:  make([]float64, n),
	}
	for line, rec := range records {
		var idx [3]int
		for a := 0; a < 3; a++ {
			if idx[a], err = strconv.Atoi(rec[a]); err != nil {
				return nil, fmt.Errorf("%s line %d: %w", ftleFile, line+2, err)
			}
			if idx[a] < 0 || idx[a] >= dims[a] {
				return nil, fmt.Errorf("%s line %d: node %v outside grid %v", ftleFile, line+2, idx, dims)
			}
		}
		v, err := parseFloats(rec[3:])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", ftleFile, line+2, err)
		}
		id := idx[0] + dims[0]*(idx[1]+dims[1]*idx[2])
		f.Origins[id] = dynamo.Vec3{v[0], v[1], v[2]}
		f.Values[id] = v[3]
	}
	return f, nil
}

var punctureHeader = []string{"particle_id", "seed_id", "index", "time", "x", "y", "z", "u", "v"}

func punctureRows(ps []analysis.Puncture) [][]string {
	rows := [][]string{punctureHeader}
	for _, p := range ps {
		rows = append(rows, []string{
			strconv.FormatInt(p.ParticleID, 10), strconv.Itoa(p.SeedID), strconv.Itoa(p.Index),
			formatFloat(p.Time),
			formatFloat(p.Position[0]), formatFloat(p.Position[1]), formatFloat(p.Position[2]),
			formatFloat(p.U), formatFloat(p.V),
		})
	}
	return rows
}

func (s *Store) LoadPunctures(runID string) ([]analysis.Puncture, error) {
	records, err := readCSV(filepath.Join(s.baseDir, runID, puncturesFile), len(punctureHeader))
	if err != nil {
		return nil, err
	}
	out := make([]analysis.Puncture, 0, len(records))
	for line, rec := range records {
		id, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", puncturesFile, line+2, err)
		}
		seedID, err := strconv.Atoi(rec[1])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", puncturesFile, line+2, err)
		}
		index, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", puncturesFile, line+2, err)
		}
		v, err := parseFloats(rec[3:])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", puncturesFile, line+2, err)
		}
		out = append(out, analysis.Puncture{
			ParticleID: id,
			SeedID:     seedID,
			Index:      index,
			Time:       v[0],
			Position:   dynamo.Vec3{v[1], v[2], v[3]},
			U:          v[4],
			V:          v[5],
		})
	}
	return out, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

// readCSV returns the records after the header, each with width fields.
func readCSV(path string, width int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = width
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: missing header", filepath.Base(path))
	}
	return records[1:], nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
