package run

// PreviewChars is the length of the input/output previews in summaries.
const PreviewChars = 48

// Summary represents a run's metadata with truncated text previews.
// Used for list operations to keep responses small.
type Summary struct {
	ID            string  `json:"id"`
	Workspace     string  `json:"workspace"`
	WorkspaceNorm string  `json:"workspace_norm"`
	Kind          Kind    `json:"kind"`
	Policy        *string `json:"policy,omitempty"`
	InputPreview  string  `json:"input_preview"`
	OutputPreview string  `json:"output_preview"`
	Valid         *bool   `json:"valid,omitempty"`
	Outcome       *string `json:"outcome,omitempty"`
	InputChars    int     `json:"input_chars"`
	OutputChars   int     `json:"output_chars"`
	CreatedAt     int64   `json:"created_at"`
	DeletedAt     *int64  `json:"deleted_at,omitempty"`
}

// ToSummary converts a Run to a Summary, truncating the texts.
func (r *Run) ToSummary() Summary {
	return Summary{
		ID:            r.ID,
		Workspace:     r.WorkspaceRaw,
		WorkspaceNorm: r.WorkspaceNorm,
		Kind:          r.Kind,
		Policy:        r.Policy,
		InputPreview:  Preview(r.InputText, PreviewChars),
		OutputPreview: Preview(r.OutputText, PreviewChars),
		Valid:         r.Valid,
		Outcome:       r.Outcome,
		InputChars:    r.InputChars,
		OutputChars:   r.OutputChars,
		CreatedAt:     r.CreatedAt,
		DeletedAt:     r.DeletedAt,
	}
}

// Preview returns at most maxChars runes of s, with "…" appended when truncated.
func Preview(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i] + "…"
		}
		n++
	}
	return s
}
