package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UniqueName returns a path in dir for name that does not exist yet.
// On collision it appends _1, _2, etc. before the extension. Directory
// components in name are dropped so attachments cannot escape dir.
func UniqueName(dir, name string) string {
	cleanName := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if cleanName == "." || cleanName == "/" || cleanName == ".." {
		cleanName = "attachment"
	}

	path := filepath.Join(dir, cleanName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(cleanName)
	base := cleanName[:len(cleanName)-len(ext)]

	for i := 1; ; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}

// Save writes data under dir, creating dir on demand and picking a
// unique file name. It returns the path written.
func Save(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating staging directory %s: %w", dir, err)
	}

	path := UniqueName(dir, name)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}

	return path, nil
}

// RemoveAll deletes each path that still exists and returns how many
// were removed. Missing files are not an error.
func RemoveAll(paths []string) (int, error) {
	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case os.IsNotExist(err):
		default:
			return removed, fmt.Errorf("removing %s: %w", p, err)
		}
	}
	return removed, nil
}
