package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// pathProbeTimeout bounds accessibility checks so a dead network mount
// cannot stall an import cycle.
const pathProbeTimeout = 3 * time.Second

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
	".wmv": true, ".mov": true, ".ts": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".m4a": true, ".ogg": true,
	".opus": true, ".wav": true, ".aac": true,
}

var bookExtensions = map[string]bool{
	".epub": true, ".mobi": true, ".pdf": true, ".azw3": true,
	".cbz": true, ".cbr": true,
}

// minVideoBytes filters out sample clips bundled alongside the main feature.
const minVideoBytes = 50 << 20

type foundFile struct {
	path string
	size int64
}

// probePath stats a path on a separate goroutine so an unresponsive
// filesystem surfaces as an error instead of a hang.
func probePath(path string) error {
	type statResult struct {
		info os.FileInfo
		err  error
	}
	ch := make(chan statResult, 1)
	go func() {
		info, err := os.Stat(path)
		ch <- statResult{info, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("path not accessible: %w", res.err)
		}
		return nil
	case <-time.After(pathProbeTimeout):
		return fmt.Errorf("path %s not responding after %s", path, pathProbeTimeout)
	}
}

// findMediaFiles walks root collecting files whose extension is in exts,
// largest first. Sample clips and hidden files are skipped.
func findMediaFiles(root string, exts map[string]bool, minBytes int64) ([]foundFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	var found []foundFile
	consider := func(path string, size int64) {
		base := strings.ToLower(filepath.Base(path))
		if strings.HasPrefix(base, ".") || strings.Contains(base, "sample") {
			return
		}
		if !exts[filepath.Ext(base)] || size < minBytes {
			return
		}
		found = append(found, foundFile{path: path, size: size})
	}

	if !info.IsDir() {
		consider(root, info.Size())
	} else {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			consider(path, fi.Size())
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].size > found[j].size })
	return found, nil
}

// moveFile relocates src to dst, creating parent directories. Rename is
// attempted first; across filesystems it falls back to copy, size-verify,
// and remove. A partial copy is cleaned up before the error returns.
func moveFile(src, dst string, keepSource bool) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	if !keepSource {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
	}

	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return err
	}
	if !keepSource {
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("remove source after copy: %w", err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	srcInfo, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	written, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if written != srcInfo.Size() {
		return fmt.Errorf("short copy: wrote %d of %d bytes", written, srcInfo.Size())
	}
	return nil
}

// sanitizeName strips characters that are unsafe in directory names.
func sanitizeName(s string) string {
	repl := strings.NewReplacer("/", "-", "\\", "-", ":", " -", "*", "", "?", "", "\"", "", "<", "", ">", "", "|", "")
	return strings.TrimSpace(repl.Replace(s))
}
