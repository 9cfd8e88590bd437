package common

import (
	"os"
	"path/filepath"
)

// SanitizePaths rewrites every string value in the document that names
// an existing filesystem entry so it stays inside safeWorkDir. An
// existing directory becomes safeWorkDir itself, an existing file
// becomes safeWorkDir joined with its base name. Non-path strings and
// non-string values pass through untouched.
func SanitizePaths(doc map[string]interface{}, safeWorkDir string) map[string]interface{} {
	if safeWorkDir == "" {
		return doc
	}
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = sanitizeValue(v, safeWorkDir)
	}
	return out
}

func sanitizeValue(v interface{}, safeWorkDir string) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return SanitizePaths(val, safeWorkDir)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item, safeWorkDir)
		}
		return out
	case string:
		return sanitizePath(val, safeWorkDir)
	default:
		return v
	}
}

func sanitizePath(s, safeWorkDir string) string {
	info, err := os.Stat(s)
	if err != nil {
		return s
	}
	if info.IsDir() {
		return safeWorkDir
	}
	return filepath.Join(safeWorkDir, filepath.Base(s))
}
