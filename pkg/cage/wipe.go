package cage

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// WipeReport summarizes a secure-wipe pass across one or more
// directories, per spec.md §4.10's "report per-category counts and
// total bytes destroyed".
type WipeReport struct {
	FilesDestroyed int
	BytesDestroyed int64
	PerDir         map[string]int
}

// WipeDirs securely overwrites and removes every file under each given
// directory, then removes and recreates the directory itself.
//
// For each file: open for writing, overwrite with cryptographic random
// bytes, fsync; overwrite with zeros, fsync; repeat `passes` times;
// unlink. fast=true skips the overwrite passes and only unlinks.
func WipeDirs(dirs []string, passes int, fast bool) (WipeReport, error) {
	report := WipeReport{PerDir: make(map[string]int, len(dirs))}

	for _, dir := range dirs {
		count := 0
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				return nil
			}

			size := info.Size()
			if !fast {
				if err := overwriteFile(path, size, passes); err != nil {
					return fmt.Errorf("overwriting %s: %w", path, err)
				}
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("removing %s: %w", path, err)
			}

			count++
			report.BytesDestroyed += size
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return report, err
		}

		report.FilesDestroyed += count
		report.PerDir[dir] = count

		if err := os.RemoveAll(dir); err != nil {
			return report, fmt.Errorf("removing directory %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return report, fmt.Errorf("recreating directory %s: %w", dir, err)
		}
	}

	return report, nil
}

func overwriteFile(path string, size int64, passes int) error {
	if size == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	zeros := make([]byte, size)
	randBuf := make([]byte, size)

	for i := 0; i < passes; i++ {
		if _, err := rand.Read(randBuf); err != nil {
			return fmt.Errorf("generating random overwrite buffer: %w", err)
		}
		if err := writeAtAndSync(f, randBuf); err != nil {
			return err
		}
		if err := writeAtAndSync(f, zeros); err != nil {
			return err
		}
	}
	return nil
}

func writeAtAndSync(f *os.File, buf []byte) error {
	if _, err := f.WriteAt(buf, 0); err != nil {
		return err
	}
	return f.Sync()
}
