package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/rle"
	"github.com/hpungsan/strand/internal/run"
)

// TallyInput contains parameters for the Tally operation.
type TallyInput struct {
	Text string
	RecordOptions
}

// TallyCount is one distinct character and its total count.
type TallyCount struct {
	Char  string `json:"char"`
	Count int    `json:"count"`
}

// TallyOutput contains the result of the Tally operation.
type TallyOutput struct {
	Tally    string       `json:"tally"`
	Counts   []TallyCount `json:"counts"`
	Distinct int          `json:"distinct"`
	ID       string       `json:"id,omitempty"`
}

// Tally counts every distinct character, ordered by first occurrence.
func Tally(ctx context.Context, database *sql.DB, cfg *config.Config, input TallyInput) (*TallyOutput, error) {
	if err := checkInput(input.Text, cfg); err != nil {
		return nil, err
	}

	totals := rle.Tally(input.Text)
	counts := make([]TallyCount, 0, len(totals))
	for _, t := range totals {
		counts = append(counts, TallyCount{Char: string(t.Char), Count: t.Count})
	}
	formatted := rle.Format(totals)

	out := &TallyOutput{
		Tally:    formatted,
		Counts:   counts,
		Distinct: len(totals),
	}

	id, err := record(ctx, database, cfg, input.RecordOptions, &run.Run{
		Kind:       run.KindTally,
		InputText:  input.Text,
		OutputText: formatted,
	})
	if err != nil {
		return nil, err
	}
	out.ID = id

	return out, nil
}
