package taskcache

import (
	"archive/tar"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"judgeworker/internal/model"
	appErr "judgeworker/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

// metaFileName is the header object every snapshot archive carries
// alongside its i.j.in/i.j.out test-case tree.
const metaFileName = "meta.json"

type snapshotMeta struct {
	TimeLimit        float64 `json:"time_limit"`
	MemoryLimit      int64   `json:"memory_limit"`
	Grader           bool    `json:"grader"`
	GraderSourceCode string  `json:"grader_source_code"`
	GraderLanguage   string  `json:"grader_language"`
}

// extractArchive decompresses and untars a zstd+tar snapshot into destDir,
// guarding against zip-slip path traversal in archive entry names.
// Grounded on the teacher's DataPackCache.extractDataPack.
func extractArchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "open zstd stream failed")
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}

	cleanDest := filepath.Clean(destDir)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "read tar entry failed")
		}

		target := filepath.Join(destDir, hdr.Name)
		cleanTarget := filepath.Clean(target)
		if cleanTarget != cleanDest && !strings.HasPrefix(cleanTarget, cleanDest+string(os.PathSeparator)) {
			return appErr.Newf(appErr.CacheError, "snapshot archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(cleanTarget, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(cleanTarget), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(cleanTarget, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		}
	}
}

// ReadTaskInfo parses a snapshot directory's meta.json header via a
// streaming decoder, so the judge pipeline never has to load test-case
// bytes to learn a task's limits.
func ReadTaskInfo(taskID int64, snapshotDir string) (model.TaskInfo, error) {
	f, err := os.Open(filepath.Join(snapshotDir, metaFileName))
	if err != nil {
		return model.TaskInfo{}, appErr.Wrapf(err, appErr.CacheError, "open snapshot meta failed")
	}
	defer f.Close()

	var meta snapshotMeta
	if err := json.NewDecoder(f).Decode(&meta); err != nil {
		return model.TaskInfo{}, appErr.Wrapf(err, appErr.CacheError, "decode snapshot meta failed")
	}

	return model.TaskInfo{
		TaskID:           taskID,
		TimeLimitSeconds: meta.TimeLimit,
		MemoryLimitMB:    meta.MemoryLimit,
		Grader:           meta.Grader,
		GraderSourceCode: meta.GraderSourceCode,
		GraderLanguage:   meta.GraderLanguage,
	}, nil
}

// TestDataDir returns the directory within a snapshot holding i.j.in /
// i.j.out files, for handoff to the testdata.Iterator.
func TestDataDir(snapshotDir string) string {
	return filepath.Join(snapshotDir, "cases")
}
