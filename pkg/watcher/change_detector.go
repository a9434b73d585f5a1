package watcher

// ChangeAnalysis describes what changed and which steps need to be re-run
type ChangeAnalysis struct {
	ReloadConfig bool
	Rebuild      bool
	ChangedFiles []string
}

// AnalyzeChanges determines which steps need to be re-run based on what changed
func AnalyzeChanges(event ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{
		ChangedFiles: event.Paths,
	}

	switch event.Type {
	case ChangeTypeConfig:
		// Field names, merge policy or layout options may have changed
		analysis.ReloadConfig = true
		analysis.Rebuild = true

	case ChangeTypeInput:
		analysis.Rebuild = true
	}

	return analysis
}
