package pageview

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// WriteDayFile writes a version-1 pageview file at path: the magic header,
// the article count, and one little-endian uint64 per article dense id.
// Parent directories are created as needed. The write goes through a
// temporary file renamed into place so readers never observe a torn file.
func WriteDayFile(path string, counts []uint64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pageview: create day dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".day-*")
	if err != nil {
		return fmt.Errorf("pageview: create temp day file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(Magic); err != nil {
		tmp.Close()
		return fmt.Errorf("pageview: write magic: %w", err)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(counts)))
	if _, err := w.Write(buf[:4]); err != nil {
		tmp.Close()
		return fmt.Errorf("pageview: write article count: %w", err)
	}
	for _, c := range counts {
		binary.LittleEndian.PutUint64(buf[:], c)
		if _, err := w.Write(buf[:]); err != nil {
			tmp.Close()
			return fmt.Errorf("pageview: write counts: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("pageview: flush day file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("pageview: close day file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("pageview: rename day file: %w", err)
	}
	return nil
}
