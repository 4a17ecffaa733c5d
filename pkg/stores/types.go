package stores

import (
	"context"
	"time"

	"github.com/madcore/madcore/pkg/engine"
)

// Parameter is one persisted key of a section.
type Parameter struct {
	Section   string    `json:"section"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the full persistence interface used by the CLI.
type Store interface {
	engine.ParameterStore
	engine.RunRecorder

	// Sections lists section names starting with prefix.
	Sections(ctx context.Context, prefix string) ([]string, error)

	// GetRun returns one run record.
	GetRun(ctx context.Context, id string) (*engine.RunRecord, error)

	// ListRuns returns the newest runs first.
	ListRuns(ctx context.Context, limit, offset int) ([]*engine.RunRecord, error)

	Close() error
}

// timeLayout is how timestamps are stored; it sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
