package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"
)

const (
	SolutionsBucket = "solutions"

	DefaultDBPath = "./data/solutions.db"
)

var ErrSolutionNotFound = errors.New("solution not found")

// ArchivedSolution is one served solve request. Solution holds the encoded
// solution file as returned to the client.
type ArchivedSolution struct {
	RunID     string          `json:"runId"`
	Mode      string          `json:"mode"`
	TokenPair string          `json:"tokenPair,omitempty"`
	Status    string          `json:"status"`
	Score     string          `json:"score"`
	CreatedAt time.Time       `json:"createdAt"`
	Solution  json.RawMessage `json:"solution,omitempty"`
}

type SolutionArchive struct {
	db     *boltdb.BoltDatabase
	dbPath string
}

func NewSolutionArchive(dbPath string) (*SolutionArchive, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	log.Info().Str("path", dbPath).Msg("[solutionArchive] opened database")

	return &SolutionArchive{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func (s *SolutionArchive) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SolutionArchive) Save(rec *ArchivedSolution) error {
	if rec.RunID == "" {
		return errors.New("archived solution has no run id")
	}
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal solution: %w", err)
	}
	return s.db.Set(SolutionsBucket, []byte(rec.RunID), data)
}

func (s *SolutionArchive) Load(runID string) (*ArchivedSolution, error) {
	data, err := s.db.List(SolutionsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list solutions: %w", err)
	}
	value, ok := data[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSolutionNotFound, runID)
	}

	var rec ArchivedSolution
	if err := sonic.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal solution %s: %w", runID, err)
	}
	return &rec, nil
}

// List returns the archived solutions, newest first. Records that fail to
// decode are skipped.
func (s *SolutionArchive) List() ([]*ArchivedSolution, error) {
	data, err := s.db.List(SolutionsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list solutions: %w", err)
	}

	recs := make([]*ArchivedSolution, 0, len(data))
	for runID, value := range data {
		var rec ArchivedSolution
		if err := sonic.Unmarshal(value, &rec); err != nil {
			log.Warn().Str("run_id", runID).Err(err).Msg("[solutionArchive] failed to unmarshal solution, skipping")
			continue
		}
		recs = append(recs, &rec)
	}
	slices.SortFunc(recs, func(a, b *ArchivedSolution) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return recs, nil
}

func (s *SolutionArchive) Count() (int, error) {
	data, err := s.db.List(SolutionsBucket)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}
