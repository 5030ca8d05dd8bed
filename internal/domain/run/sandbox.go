package run

// SandboxFile is one file row in a sandbox's copy-on-write arena, keyed by
// (run id, path). Edited marks rows touched after the snapshot; only edited
// rows are considered for promotion.
type SandboxFile struct {
	RunID   string `json:"run_id"`
	Path    string `json:"path"`
	Content string `json:"content"`
	Edited  bool   `json:"edited"`
}
