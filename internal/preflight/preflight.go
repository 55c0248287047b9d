// Package preflight runs the operational checks `reldb doctor` reports
// before a server starts serving: is the data directory writable, is there
// room left on the volume, and does every table's catalog descriptor still
// have its heap file (and declared index files) on disk.
package preflight

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jochuuuu/reldb/internal/types"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// minFreeBytes is the free-space threshold below which disk space is
// reported as a warning rather than ok.
const minFreeBytes = 64 * 1024 * 1024 // 64MB

// CheckInfo is the result of one named check.
type CheckInfo struct {
	Name    string
	Status  Status
	Message string
}

// TableCheckInfo reports whether one catalogued table's on-disk files are
// intact.
type TableCheckInfo struct {
	Name    string
	Status  Status
	Message string
}

// Report is the full set of preflight results for a data directory.
type Report struct {
	DataDir   CheckInfo
	IndexDir  CheckInfo
	DiskSpace CheckInfo
	Tables    []TableCheckInfo
}

// AllOK reports whether every check (including every table) passed
// without error. Warnings do not count as failures.
func (r *Report) AllOK() bool {
	if r.DataDir.Status == StatusError || r.IndexDir.Status == StatusError || r.DiskSpace.Status == StatusError {
		return false
	}
	for _, t := range r.Tables {
		if t.Status == StatusError {
			return false
		}
	}
	return true
}

// Run executes every preflight check against dataDir/indexDir.
func Run(dataDir, indexDir string) *Report {
	report := &Report{}
	report.DataDir = checkDirWritable("data directory", dataDir)
	report.IndexDir = checkDirWritable("index directory", indexDir)
	report.DiskSpace = checkDiskSpace(dataDir)
	report.Tables = checkTables(dataDir, indexDir)
	return report
}

func checkDirWritable(label, dir string) CheckInfo {
	info := CheckInfo{Name: label}
	if err := os.MkdirAll(dir, 0755); err != nil {
		info.Status = StatusError
		info.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return info
	}

	probe := filepath.Join(dir, ".reldb_preflight_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		info.Status = StatusError
		info.Message = fmt.Sprintf("%s is not writable: %v", dir, err)
		return info
	}
	os.Remove(probe)

	info.Status = StatusOK
	info.Message = dir
	return info
}

func checkDiskSpace(dataDir string) CheckInfo {
	info := CheckInfo{Name: "disk space"}
	free, ok := diskFreeBytes(dataDir)
	if !ok {
		info.Status = StatusWarning
		info.Message = "could not determine free space on this platform"
		return info
	}
	if free < minFreeBytes {
		info.Status = StatusWarning
		info.Message = fmt.Sprintf("only %d bytes free, below the %d byte threshold", free, minFreeBytes)
		return info
	}
	info.Status = StatusOK
	info.Message = fmt.Sprintf("%d bytes free", free)
	return info
}

// checkTables mirrors catalog.loadExisting's file layout expectations: for
// every "<table>_meta.json" schema descriptor, confirm the heap file and
// every declared index's on-disk files are present.
func checkTables(dataDir, indexDir string) []TableCheckInfo {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil
	}

	var results []TableCheckInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_meta.json") {
			continue
		}
		tableName := strings.TrimSuffix(entry.Name(), "_meta.json")
		results = append(results, checkTable(dataDir, indexDir, tableName))
	}
	return results
}

func checkTable(dataDir, indexDir, tableName string) TableCheckInfo {
	check := TableCheckInfo{Name: tableName}

	data, err := os.ReadFile(filepath.Join(dataDir, tableName+"_meta.json"))
	if err != nil {
		check.Status = StatusError
		check.Message = fmt.Sprintf("cannot read schema descriptor: %v", err)
		return check
	}
	var schema types.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		check.Status = StatusError
		check.Message = fmt.Sprintf("corrupt schema descriptor: %v", err)
		return check
	}

	heapPath := filepath.Join(dataDir, tableName+".heap")
	if _, err := os.Stat(heapPath); err != nil {
		check.Status = StatusError
		check.Message = fmt.Sprintf("missing heap file %s", heapPath)
		return check
	}

	var missing []string
	for _, attr := range schema.Attributes {
		if attr.Index == types.IndexNone {
			continue
		}
		if !indexFilesExist(indexDir, tableName, attr.Name, attr.Index.Normalize()) {
			missing = append(missing, fmt.Sprintf("%s(%s)", attr.Name, attr.Index))
		}
	}
	if len(missing) > 0 {
		check.Status = StatusWarning
		check.Message = fmt.Sprintf("missing index files for: %s (not rebuilt automatically; table.Manager.Rebuild repopulates indexes from the heap file)", strings.Join(missing, ", "))
		return check
	}

	check.Status = StatusOK
	indexed := 0
	for _, attr := range schema.Attributes {
		if attr.Index != types.IndexNone {
			indexed++
		}
	}
	check.Message = fmt.Sprintf("%d attribute(s), %d indexed", len(schema.Attributes), indexed)
	return check
}

func indexFilesExist(indexDir, tableName, attrName string, kind types.IndexKind) bool {
	base := filepath.Join(indexDir, fmt.Sprintf("%s_%s", tableName, attrName))
	var candidates []string
	switch kind {
	case types.IndexHash:
		candidates = []string{base + "_dir.dat", base + "_buckets.dat"}
	case types.IndexAVL:
		candidates = []string{base + "_avl.dat"}
	case types.IndexBTree:
		candidates = []string{base + "_tree.dat", base + "_meta.dat"}
	case types.IndexRTree:
		candidates = []string{base + "_rtree.json"}
	default:
		return true
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err != nil {
			return false
		}
	}
	return true
}

// FormatReport renders a Report as the plain-text doctor output.
func FormatReport(r *Report) string {
	var b strings.Builder
	writeCheck := func(c CheckInfo) {
		fmt.Fprintf(&b, "%s... %s\n", c.Name, strings.ToUpper(string(c.Status)))
		if c.Message != "" {
			fmt.Fprintf(&b, "  %s\n", c.Message)
		}
	}
	writeCheck(r.DataDir)
	writeCheck(r.IndexDir)
	writeCheck(r.DiskSpace)

	if len(r.Tables) == 0 {
		b.WriteString("tables... none registered yet\n")
	} else {
		fmt.Fprintf(&b, "tables (%d)...\n", len(r.Tables))
		for _, t := range r.Tables {
			fmt.Fprintf(&b, "  %s: %s\n", t.Name, strings.ToUpper(string(t.Status)))
			if t.Message != "" {
				fmt.Fprintf(&b, "    %s\n", t.Message)
			}
		}
	}

	if r.AllOK() {
		b.WriteString("\nAll systems operational.\n")
	} else {
		b.WriteString("\nOne or more checks failed; see above.\n")
	}
	return b.String()
}
