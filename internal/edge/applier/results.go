package applier

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/studio-b12/gowebdav"
)

const resultsReadyMarker = ".results_ready"

// bzip2Method is a private zip compression method id, registered below with
// a bzip2 writer so archived results compress better than store/deflate
// for the large, already-binary log/telemetry files executors typically
// produce.
const bzip2Method = 12

func init() {
	zip.RegisterCompressor(bzip2Method, func(w io.Writer) (io.WriteCloser, error) {
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	})
}

// watchResults polls dir for the .results_ready marker or for done to be
// closed (container/process exit), then archives dir as a BZIP2 zip and
// PUTs it to resultsURL. Runs until ctx is cancelled.
func watchResults(ctx context.Context, dir, resultsURL string, done <-chan struct{}) {
	if resultsURL == "" {
		return
	}
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			uploadResults(dir, resultsURL)
			return
		case <-ticker.C:
			if _, err := os.Stat(filepath.Join(dir, resultsReadyMarker)); err == nil {
				uploadResults(dir, resultsURL)
				return
			}
		}
	}
}

func uploadResults(dir, resultsURL string) {
	archivePath, err := archiveResults(dir)
	if err != nil {
		return
	}
	defer os.Remove(archivePath)

	data, err := os.ReadFile(archivePath)
	if err != nil {
		return
	}
	c := gowebdav.NewClient(resultsURL, "", "")
	_ = c.Write(filepath.Base(archivePath), data, 0o644)
}

func archiveResults(dir string) (string, error) {
	out, err := os.CreateTemp("", "opendut-results-*.zip")
	if err != nil {
		return "", err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		header := &zip.FileHeader{Name: rel, Method: bzip2Method}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("results: archive %s: %w", dir, err)
	}
	return out.Name(), nil
}
