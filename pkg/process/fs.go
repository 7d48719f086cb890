package process

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// EnsurePrivateDir creates path (and parents) and restricts it to the
// current user.
func EnsurePrivateDir(path, label string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create %s directory %s: %w", label, path, err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0o700); err != nil {
			return fmt.Errorf("failed to restrict %s directory %s: %w", label, path, err)
		}
	}
	return nil
}

// CopyIfNewer copies src to dst when dst is missing or older than src, and
// restricts dst to the current user. A missing src is not an error.
func CopyIfNewer(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !srcInfo.Mode().IsRegular() {
		return false, nil
	}
	if dstInfo, err := os.Stat(dst); err == nil && !dstInfo.ModTime().Before(srcInfo.ModTime()) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return false, fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	in, err := os.Open(src)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return false, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", dst, err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(dst, 0o600); err != nil {
			return true, fmt.Errorf("restrict %s: %w", dst, err)
		}
	}
	return true, nil
}
