package launch

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// archiveArtifact writes a zstd-compressed copy of the finished artifact
// next to it as <path>.zst. The plain artifact is left in place; the archive
// is an extra, not a replacement.
func archiveArtifact(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".zst")
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(dst)
	if err != nil {
		dst.Close()
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		dst.Close()
		return fmt.Errorf("compress %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
