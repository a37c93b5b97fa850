package ops

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/strand/internal/config"
	"github.com/hpungsan/strand/internal/errors"
	"github.com/hpungsan/strand/internal/run"
)

// maxBatchFileBytes bounds how much of a batch file is read.
const maxBatchFileBytes = 8 << 20

// batchFileExts are the accepted batch file extensions. JSON is a subset of YAML.
var batchFileExts = []string{".yaml", ".yml", ".json"}

// BatchItem is one sequence operation in a batch.
type BatchItem struct {
	Kind   string `json:"kind" yaml:"kind"`
	Text   string `json:"text" yaml:"text"`
	Policy string `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// BatchFile is the on-disk layout read by LoadBatchFile.
type BatchFile struct {
	Workspace string      `yaml:"workspace"`
	Record    bool        `yaml:"record"`
	Items     []BatchItem `yaml:"items"`
}

// BatchInput contains parameters for the Batch operation.
type BatchInput struct {
	Items []BatchItem
	RecordOptions
}

// BatchItemError describes why a single item failed.
type BatchItemError struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// BatchResult is the outcome of one item, in input order.
type BatchResult struct {
	Index  int             `json:"index"`
	Kind   string          `json:"kind"`
	OK     bool            `json:"ok"`
	Result any             `json:"result,omitempty"`
	Error  *BatchItemError `json:"error,omitempty"`
}

// BatchOutput contains the result of the Batch operation.
type BatchOutput struct {
	Results   []BatchResult `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// Batch runs many sequence operations. A failing item is reported in its
// result and does not stop the rest; cancellation stops the whole batch.
func Batch(ctx context.Context, database *sql.DB, cfg *config.Config, input BatchInput) (*BatchOutput, error) {
	if len(input.Items) == 0 {
		return nil, errors.NewInvalidRequest("items must not be empty")
	}
	if len(input.Items) > MaxBatchItems {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("too many items: %d (max %d)", len(input.Items), MaxBatchItems))
	}

	out := &BatchOutput{Results: make([]BatchResult, 0, len(input.Items))}
	for i, item := range input.Items {
		if err := cancelled(ctx, "batch"); err != nil {
			return nil, err
		}

		res := BatchResult{Index: i, Kind: item.Kind}
		result, err := runItem(ctx, database, cfg, item, input.RecordOptions)
		if err != nil {
			res.Error = itemError(err)
			out.Failed++
		} else {
			res.OK = true
			res.Result = result
			out.Succeeded++
		}
		out.Results = append(out.Results, res)
	}

	return out, nil
}

func runItem(ctx context.Context, database *sql.DB, cfg *config.Config, item BatchItem, opts RecordOptions) (any, error) {
	kind, err := run.ParseKind(strings.TrimSpace(item.Kind))
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	if kind != run.KindValidate && item.Policy != "" {
		return nil, errors.NewInvalidRequest("policy only applies to validate")
	}

	switch kind {
	case run.KindValidate:
		return Validate(ctx, database, cfg, ValidateInput{Text: item.Text, Policy: item.Policy, RecordOptions: opts})
	case run.KindEncode:
		return Encode(ctx, database, cfg, EncodeInput{Text: item.Text, RecordOptions: opts})
	case run.KindDecode:
		return Decode(ctx, database, cfg, DecodeInput{Encoded: item.Text, RecordOptions: opts})
	default:
		return Tally(ctx, database, cfg, TallyInput{Text: item.Text, RecordOptions: opts})
	}
}

func itemError(err error) *BatchItemError {
	if sErr, ok := errors.As(err); ok {
		if sErr.Code == errors.ErrInternal {
			return &BatchItemError{Code: sErr.Code, Message: "internal error"}
		}
		return &BatchItemError{Code: sErr.Code, Message: sErr.Message}
	}
	return &BatchItemError{Code: errors.ErrInternal, Message: "internal error"}
}

// LoadBatchFile reads a YAML or JSON batch file.
func LoadBatchFile(path string, cfg *config.Config) (*BatchFile, error) {
	if err := ValidatePath(path, PathRule{Exts: batchFileExts}, cfg); err != nil {
		return nil, err
	}

	f, err := openFileNoFollowRead(path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open batch file: %w", err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBatchFileBytes+1))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read batch file: %w", err))
	}
	if len(data) > maxBatchFileBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("batch file exceeds %d bytes", maxBatchFileBytes))
	}

	var bf BatchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid batch file: %v", err))
	}
	if len(bf.Items) == 0 {
		return nil, errors.NewInvalidRequest("batch file has no items")
	}
	return &bf, nil
}
