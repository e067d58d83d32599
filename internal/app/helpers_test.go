package app_test

import (
	"os"
	"time"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func chtimes(path string, ts time.Time) error {
	return os.Chtimes(path, ts, ts)
}
