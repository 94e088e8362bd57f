package server

import (
	"bufio"
	"errors"
	"os"
	"strings"
)

// pathErrIsNotExist reports whether err indicates a missing file, unwrapping
// the way os.IsNotExist would but via the errors package so it composes with
// wrapped errors from toml.DecodeFile.
func pathErrIsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// createTruncate opens path for writing, creating it if necessary and
// truncating any existing content. The parent directory must already exist.
func createTruncate(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

// tailFile returns the last n lines of the file at path, joined by "\n".
// It reads the whole file, keeping only the last n lines in memory; the log
// is never rotated, so the read grows with the log.
func tailFile(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}
