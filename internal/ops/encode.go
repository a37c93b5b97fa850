package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/rle"
	"github.com/hpungsan/strand/internal/run"
)

// EncodeInput contains parameters for the Encode operation.
type EncodeInput struct {
	Text string
	RecordOptions
}

// EncodeOutput contains the result of the Encode operation.
type EncodeOutput struct {
	Encoded     string  `json:"encoded"`
	Runs        int     `json:"runs"`
	InputChars  int     `json:"input_chars"`
	OutputChars int     `json:"output_chars"`
	Ratio       float64 `json:"ratio"`
	// Reversible is false when the input holds digits, which decode cannot tell apart from counts.
	Reversible bool   `json:"reversible"`
	ID         string `json:"id,omitempty"`
}

// Encode run-length encodes text.
func Encode(ctx context.Context, database *sql.DB, cfg *config.Config, input EncodeInput) (*EncodeOutput, error) {
	if err := checkInput(input.Text, cfg); err != nil {
		return nil, err
	}

	runs := rle.Runs(input.Text)
	encoded := rle.Format(runs)
	inChars := rle.CountChars(input.Text)
	outChars := rle.CountChars(encoded)

	out := &EncodeOutput{
		Encoded:     encoded,
		Runs:        len(runs),
		InputChars:  inChars,
		OutputChars: outChars,
		Ratio:       rle.Ratio(inChars, outChars),
		Reversible:  rle.Reversible(input.Text),
	}

	id, err := record(ctx, database, cfg, input.RecordOptions, &run.Run{
		Kind:       run.KindEncode,
		InputText:  input.Text,
		OutputText: encoded,
	})
	if err != nil {
		return nil, err
	}
	out.ID = id

	return out, nil
}
