package ops

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/rle"
	"github.com/hpungsan/strand/internal/run"
)

// DecodeInput contains parameters for the Decode operation.
type DecodeInput struct {
	Encoded string
	RecordOptions
}

// DecodeOutput contains the result of the Decode operation.
type DecodeOutput struct {
	Decoded     string `json:"decoded"`
	Runs        int    `json:"runs"`
	InputChars  int    `json:"input_chars"`
	OutputChars int    `json:"output_chars"`
	ID          string `json:"id,omitempty"`
}

// Decode expands a run-length encoded string.
func Decode(ctx context.Context, database *sql.DB, cfg *config.Config, input DecodeInput) (*DecodeOutput, error) {
	if err := checkInput(input.Encoded, cfg); err != nil {
		return nil, err
	}

	maxChars := rle.DefaultMaxChars
	if cfg != nil && cfg.DecodeMaxChars > 0 {
		maxChars = cfg.DecodeMaxChars
	}

	decoded, err := rle.DecodeLimit(input.Encoded, maxChars)
	if err != nil {
		return nil, decodeError(err, maxChars)
	}

	// DecodeLimit already validated the syntax
	runs, _ := rle.ParseRuns(input.Encoded)

	out := &DecodeOutput{
		Decoded:     decoded,
		Runs:        len(runs),
		InputChars:  rle.CountChars(input.Encoded),
		OutputChars: rle.CountChars(decoded),
	}

	id, err := record(ctx, database, cfg, input.RecordOptions, &run.Run{
		Kind:       run.KindDecode,
		InputText:  input.Encoded,
		OutputText: decoded,
	})
	if err != nil {
		return nil, err
	}
	out.ID = id

	return out, nil
}

// decodeError maps rle failures onto strand error codes.
func decodeError(err error, maxChars int) error {
	var de *rle.DecodeError
	switch {
	case stderrors.As(err, &de):
		return errors.NewMalformedEncoding(de.Offset, de.Reason)
	case stderrors.Is(err, rle.ErrOutputTooLarge):
		return errors.NewOutputTooLarge(maxChars)
	default:
		return errors.NewInternal(err)
	}
}
