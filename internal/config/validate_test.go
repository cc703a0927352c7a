package config

import (
	"errors"
	"testing"
)

func TestValidateScanRootRejectsEscape(t *testing.T) {
	cfg := &Config{FS: FSConfig{Path: "/mnt/fs"}}

	if err := cfg.ValidateScanRoot("/mnt/fs/sub/dir"); err != nil {
		t.Fatalf("subdirectory of fs.path must validate, got %v", err)
	}
	if err := cfg.ValidateScanRoot("/mnt/fs"); err != nil {
		t.Fatalf("fs.path itself must validate, got %v", err)
	}
	if err := cfg.ValidateScanRoot("/mnt/other"); !errors.Is(err, ErrPathOutsideFS) {
		t.Fatalf("expected ErrPathOutsideFS, got %v", err)
	}
}
