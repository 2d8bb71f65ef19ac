package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zen-systems/flowengine/pkg/orchestrator"
	"github.com/zen-systems/flowengine/pkg/pipeline"
)

const (
	dirPerm  = 0700
	filePerm = 0600
)

// RunRecord captures run-level metadata.
type RunRecord struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Command      string            `json:"command"`
	Family       string            `json:"family,omitempty"`
	BlockType    string            `json:"block_type,omitempty"`
	Repo         string            `json:"repo,omitempty"`
	Status       string            `json:"status"`
	Message      string            `json:"message"`
	Winner       string            `json:"winner,omitempty"`
	CodeHash     string            `json:"code_hash,omitempty"`
	PromptRef    string            `json:"prompt_ref,omitempty"`
	ToolVersions map[string]string `json:"tool_versions,omitempty"`
}

// Writer writes evidence bundles to disk.
type Writer struct {
	baseDir string
	runDir  string
}

// NewWriter creates a new evidence writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	runDir := filepath.Join(baseDir, runID)
	for _, dir := range []string{runDir, filepath.Join(runDir, "gates"), filepath.Join(runDir, "blobs")} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("create evidence dir: %w", err)
		}
		// MkdirAll is subject to umask.
		if err := os.Chmod(dir, dirPerm); err != nil {
			return nil, fmt.Errorf("chmod evidence dir: %w", err)
		}
	}

	return &Writer{baseDir: baseDir, runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteCode writes the evaluated code to code.txt.
func (w *Writer) WriteCode(code string) error {
	return writeFile(filepath.Join(w.runDir, "code.txt"), []byte(code))
}

// WriteGeneration writes the generation round report to generation.json.
func (w *Writer) WriteGeneration(report *orchestrator.Report) error {
	if report == nil {
		return fmt.Errorf("generation report is required")
	}
	return writeJSON(filepath.Join(w.runDir, "generation.json"), report)
}

// WritePipeline writes the gate report to pipeline.json and each gate
// result to gates/<gate>.json.
func (w *Writer) WritePipeline(report *pipeline.Report) error {
	if report == nil {
		return fmt.Errorf("pipeline report is required")
	}
	if err := writeJSON(filepath.Join(w.runDir, "pipeline.json"), report); err != nil {
		return err
	}
	for _, res := range report.Gates {
		name := sanitizeKind(res.Name)
		if name == "" {
			return fmt.Errorf("gate name is required")
		}
		if err := writeJSON(filepath.Join(w.runDir, "gates", name+".json"), res); err != nil {
			return err
		}
	}
	return nil
}

// WriteBlob stores content under blobs/ addressed by its SHA-256 and
// returns the run-relative reference and the hex digest. Writing the same
// content twice yields the same reference.
func (w *Writer) WriteBlob(kind string, content []byte) (string, string, error) {
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])

	kind = sanitizeKind(kind)
	if kind == "" {
		kind = "blob"
	}
	ref := fmt.Sprintf("blobs/%s-%s.txt", kind, sha[:16])
	if err := writeFile(filepath.Join(w.runDir, filepath.FromSlash(ref)), content); err != nil {
		return "", "", err
	}
	return ref, sha, nil
}

// HashString returns the hex SHA-256 of value.
func HashString(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:])
}

func sanitizeKind(kind string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(kind) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Chmod(path, filePerm)
}
