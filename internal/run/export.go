package run

// ExportRecord represents a run record in JSONL export format.
// It is used for parsing export files during import.
type ExportRecord struct {
	// Header detection field - true only for header line
	StrandExport bool `json:"_strand_export,omitempty"`

	// Header fields (only present in header line)
	SchemaVersion string `json:"schema_version,omitempty"`
	ExportedAt    int64  `json:"exported_at,omitempty"`

	// Run fields
	ID            string  `json:"id"`
	WorkspaceRaw  string  `json:"workspace_raw"`
	WorkspaceNorm string  `json:"workspace_norm"` // IGNORED on import, recomputed
	Kind          Kind    `json:"kind"`
	Policy        *string `json:"policy"`
	InputText     string  `json:"input_text"`
	OutputText    string  `json:"output_text"`
	Valid         *bool   `json:"valid"`
	Outcome       *string `json:"outcome"`
	InputChars    int     `json:"input_chars"`  // IGNORED on import, recomputed
	OutputChars   int     `json:"output_chars"` // IGNORED on import, recomputed
	CreatedAt     int64   `json:"created_at"`
	DeletedAt     *int64  `json:"deleted_at"`
}

// ToRun converts an ExportRecord to a Run, recomputing derived fields.
func (r *ExportRecord) ToRun() *Run {
	return &Run{
		ID:            r.ID,
		WorkspaceRaw:  r.WorkspaceRaw,
		WorkspaceNorm: NormalizeWorkspace(r.WorkspaceRaw),
		Kind:          r.Kind,
		Policy:        r.Policy,
		InputText:     r.InputText,
		OutputText:    r.OutputText,
		Valid:         r.Valid,
		Outcome:       r.Outcome,
		InputChars:    CountChars(r.InputText),
		OutputChars:   CountChars(r.OutputText),
		CreatedAt:     r.CreatedAt,
		DeletedAt:     r.DeletedAt,
	}
}

// ToExportRecord converts a Run to an ExportRecord for export.
func ToExportRecord(r *Run) *ExportRecord {
	return &ExportRecord{
		ID:            r.ID,
		WorkspaceRaw:  r.WorkspaceRaw,
		WorkspaceNorm: r.WorkspaceNorm,
		Kind:          r.Kind,
		Policy:        r.Policy,
		InputText:     r.InputText,
		OutputText:    r.OutputText,
		Valid:         r.Valid,
		Outcome:       r.Outcome,
		InputChars:    r.InputChars,
		OutputChars:   r.OutputChars,
		CreatedAt:     r.CreatedAt,
		DeletedAt:     r.DeletedAt,
	}
}
