package preflight

import (
	"folio/internal/config"
)

// MinFreeBytes is the free space every writable directory should keep.
const MinFreeBytes uint64 = 256 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the directory and free space checks for cfg.
// The import directory is checked only when the watcher is enabled.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results,
		CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir),
		CheckFreeSpace("Library free space", cfg.Paths.LibraryDir, MinFreeBytes),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
	)
	if cfg.Import.Watch {
		results = append(results, CheckDirectoryAccess("Import directory", cfg.Paths.ImportDir))
	}
	if cfg.Paths.ExportDir != "" {
		results = append(results, CheckDirectoryAccess("Export directory", cfg.Paths.ExportDir))
	}
	return results
}

// Failed filters results down to failing checks.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
