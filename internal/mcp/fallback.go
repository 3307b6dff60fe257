package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// maxSearchResults caps how many files a search collects. The cap
// applies during collection (the first 50 files encountered are kept
// and then sorted), matching the remote tool's behavior.
const maxSearchResults = 50

// Names of the tools the local fallback can serve.
const (
	toolSearchExcelFiles = "search_excel_files"
	toolExcelLocations   = "get_common_excel_locations"
)

// ExcelFallback is a local implementation of the Excel file discovery
// tools. These are pure functions of their arguments and the local
// filesystem, so serving them in-process is safe when the Excel MCP
// server is down. Result payloads match the remote tools field for
// field; callers cannot tell the difference except through logs.
type ExcelFallback struct {
	logger *slog.Logger
}

// NewExcelFallback creates the local fallback executor.
func NewExcelFallback(logger *slog.Logger) *ExcelFallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelFallback{logger: logger}
}

// Handles reports whether name is one of the allow-listed tools.
func (f *ExcelFallback) Handles(name string) bool {
	switch name {
	case toolSearchExcelFiles, toolExcelLocations:
		return true
	}
	return false
}

// Call executes the local implementation of an allow-listed tool.
func (f *ExcelFallback) Call(_ context.Context, name string, args map[string]any) (string, error) {
	f.logger.Info("serving tool from local fallback", "tool", name)
	switch name {
	case toolSearchExcelFiles:
		return f.searchExcelFiles(args)
	case toolExcelLocations:
		return f.commonExcelLocations()
	default:
		return "", fmt.Errorf("fallback cannot serve tool %q", name)
	}
}

// foundFile is one search hit, in the same shape the remote
// search_excel_files tool returns.
type foundFile struct {
	Filepath         string  `json:"filepath"`
	Filename         string  `json:"filename"`
	Directory        string  `json:"directory"`
	SizeBytes        int64   `json:"size_bytes"`
	SizeMB           float64 `json:"size_mb"`
	Modified         int64   `json:"modified"`
	ModifiedReadable string  `json:"modified_readable"`
}

// searchResult is the search_excel_files payload.
type searchResult struct {
	SearchPath     string      `json:"search_path"`
	Pattern        string      `json:"pattern"`
	IncludeSubdirs bool        `json:"include_subdirs"`
	TotalFound     int         `json:"total_found"`
	Files          []foundFile `json:"files"`
}

// searchExcelFiles walks the filesystem for files matching a glob
// pattern. Unreadable directories and files that disappear mid-walk
// are skipped silently; only a failure to resolve the search root
// itself produces an error payload.
func (f *ExcelFallback) searchExcelFiles(args map[string]any) (string, error) {
	searchPath := stringArg(args, "search_path", "~")
	pattern := stringArg(args, "filename_pattern", "*.xlsx")
	includeSubdirs := boolArg(args, "include_subdirs", true)

	root, err := expandSearchPath(searchPath)
	if err != nil {
		return errorJSON(err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return errorJSON(err)
	}

	files := make([]foundFile, 0, 16)
	if includeSubdirs {
		_ = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil // unreadable entry, keep walking
			}
			if d.IsDir() {
				return nil
			}
			if ok, _ := filepath.Match(pattern, d.Name()); !ok {
				return nil
			}
			info, ierr := d.Info()
			if ierr != nil {
				return nil // vanished between readdir and stat
			}
			files = append(files, newFoundFile(path, info))
			if len(files) >= maxSearchResults {
				return fs.SkipAll
			}
			return nil
		})
	} else {
		matches, _ := filepath.Glob(filepath.Join(abs, pattern))
		for _, m := range matches {
			info, serr := os.Stat(m)
			if serr != nil || info.IsDir() {
				continue
			}
			files = append(files, newFoundFile(m, info))
			if len(files) >= maxSearchResults {
				break
			}
		}
	}

	// Newest first.
	sort.Slice(files, func(i, j int) bool { return files[i].Modified > files[j].Modified })

	return marshalResult(searchResult{
		SearchPath:     abs,
		Pattern:        pattern,
		IncludeSubdirs: includeSubdirs,
		TotalFound:     len(files),
		Files:          files,
	})
}

func newFoundFile(path string, info fs.FileInfo) foundFile {
	mod := info.ModTime()
	mb := float64(info.Size()) / (1024 * 1024)
	return foundFile{
		Filepath:         path,
		Filename:         filepath.Base(path),
		Directory:        filepath.Dir(path),
		SizeBytes:        info.Size(),
		SizeMB:           math.Round(mb*100) / 100,
		Modified:         mod.Unix(),
		ModifiedReadable: mod.Format("2006-01-02 15:04:05"),
	}
}

// expandSearchPath resolves the informal home-directory spellings LLM
// callers produce ("~", "home", "home directory", "~/Documents") to
// real paths. Anything else passes through untouched.
func expandSearchPath(p string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "", "~", "~/", "home", "home directory":
		return home, nil
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:]), nil
	}
	return p, nil
}

// locationInfo describes one well-known directory. ExcelFilesCount is
// an int normally, or the string "Permission denied" when the
// directory exists but cannot be read.
type locationInfo struct {
	Path            string `json:"path"`
	Exists          bool   `json:"exists"`
	ExcelFilesCount any    `json:"excel_files_count"`
}

// locationsResult is the get_common_excel_locations payload.
type locationsResult struct {
	OS              string         `json:"os"`
	HomeDirectory   string         `json:"home_directory"`
	CommonLocations []locationInfo `json:"common_locations"`
}

// commonExcelLocations reports the platform's usual spreadsheet
// directories and how many Excel files each holds (non-recursive).
func (f *ExcelFallback) commonExcelLocations() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return errorJSON(err)
	}

	osName, dirs := platformLocations()
	locs := make([]locationInfo, 0, len(dirs))
	for _, rel := range dirs {
		dir := filepath.Join(home, rel)
		li := locationInfo{Path: dir, ExcelFilesCount: 0}
		if st, serr := os.Stat(dir); serr == nil && st.IsDir() {
			li.Exists = true
			li.ExcelFilesCount = countExcelFiles(dir)
		}
		locs = append(locs, li)
	}

	return marshalResult(locationsResult{
		OS:              osName,
		HomeDirectory:   home,
		CommonLocations: locs,
	})
}

// platformLocations returns the reported OS name and the home-relative
// directories to inspect on this platform.
func platformLocations() (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "Darwin", []string{"Desktop", "Documents", "Downloads", filepath.Join("Library", "CloudStorage")}
	case "windows":
		return "Windows", []string{"Desktop", "Documents", "Downloads", "OneDrive"}
	default:
		return "Linux", []string{"Desktop", "Documents", "Downloads"}
	}
}

// countExcelFiles counts spreadsheet files directly inside dir.
func countExcelFiles(dir string) any {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "Permission denied"
		}
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".xlsx", ".xls", ".xlsm":
			n++
		}
	}
	return n
}

// marshalResult renders a payload the way a remote tool would: as an
// indented JSON text block.
func marshalResult(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal fallback result: %w", err)
	}
	return string(out), nil
}

// errorJSON reports a fallback failure in-band, as the remote tool
// does, rather than failing the call.
func errorJSON(err error) (string, error) {
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(out), nil
}

// stringArg reads a string argument with a default for missing or
// empty values.
func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// boolArg reads a bool argument with a default for missing values.
func boolArg(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}
