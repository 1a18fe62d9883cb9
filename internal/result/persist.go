package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loadbench/loadbench/internal/errs"
)

const scriptsDirName = "scripts"

// scriptPathPrefix identifies a ScenarioResult.RenderedScript that already
// holds a relative scripts/ path (i.e. one Load just produced) rather than
// literal script text, so a later Save copies that file from the loaded
// tree (OutputDir) instead of treating the path as script text.
const scriptPathPrefix = scriptsDirName + string(filepath.Separator)

// Save persists r under <outputDir>/benchmark_<r.BenchmarkID>/, writing
// results.json plus one file per rendered script under scripts/. It fails
// if that directory already exists — a benchmark run's output is written
// exactly once.
func Save(outputDir string, r *BenchmarkResult) error {
	dir := filepath.Join(outputDir, "benchmark_"+r.BenchmarkID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return errs.Wrap(errs.AlreadyExists, fmt.Sprintf("result directory %s already exists", dir), err)
		}
		return errs.Wrap(errs.ParseError, fmt.Sprintf("create result directory %s", dir), err)
	}

	persisted := *r
	persisted.Groups = make([]ScenarioGroupResult, len(r.Groups))
	for gi, sg := range r.Groups {
		sg.ScenarioResults = append([]ScenarioResult(nil), sg.ScenarioResults...)
		for si, sr := range sg.ScenarioResults {
			text := sr.RenderedScript
			if strings.HasPrefix(text, scriptPathPrefix) {
				if r.OutputDir == "" {
					continue
				}
				data, err := os.ReadFile(filepath.Join(r.OutputDir, text))
				if err != nil {
					return errs.Wrap(errs.ParseError, fmt.Sprintf("read saved script for scenario %s", sr.ScenarioID), err)
				}
				text = string(data)
			}
			if text == "" {
				continue
			}
			scriptsDir := filepath.Join(dir, scriptsDirName)
			if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
				return errs.Wrap(errs.ParseError, fmt.Sprintf("create scripts directory under %s", dir), err)
			}
			relPath := filepath.Join(scriptsDirName, sr.ScenarioID+".js")
			if err := os.WriteFile(filepath.Join(dir, relPath), []byte(text), 0o644); err != nil {
				return errs.Wrap(errs.ParseError, fmt.Sprintf("write script for scenario %s", sr.ScenarioID), err)
			}
			sr.RenderedScript = relPath
			sg.ScenarioResults[si] = sr
		}
		persisted.Groups[gi] = sg
	}

	f, err := os.Create(filepath.Join(dir, "results.json"))
	if err != nil {
		return errs.Wrap(errs.ParseError, fmt.Sprintf("create results.json under %s", dir), err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(persisted); err != nil {
		return errs.Wrap(errs.ParseError, fmt.Sprintf("encode results.json under %s", dir), err)
	}
	return nil
}

// Load reconstructs a BenchmarkResult from dir (as produced by Save) and
// sets OutputDir to dir. RenderedScript fields are left as the relative
// scripts/ paths Save wrote; callers needing the text read the file
// directly via OutputDir.
func Load(dir string) (*BenchmarkResult, error) {
	f, err := os.Open(filepath.Join(dir, "results.json"))
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("open results.json under %s", dir), err)
	}
	defer f.Close()

	var r BenchmarkResult
	if err := json.NewDecoder(f).Decode(&r); err != nil {
		return nil, errs.Wrap(errs.ParseError, fmt.Sprintf("decode results.json under %s", dir), err)
	}
	r.OutputDir = dir
	return &r, nil
}
