// Package discover enumerates candidate sensor-log files under a root
// directory: plain .csv files whose name matches a pattern, plus matching
// .csv members inside .zip archives.
package discover

import (
	"archive/zip"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sensorflow/sensorflow/internal/model"
	"github.com/sensorflow/sensorflow/pkg/logger"
)

// Find walks root recursively and returns the candidate files matching the
// filename pattern, in deterministic walk order. Malformed archives are
// reported and skipped; they never abort discovery.
func Find(root, pattern string) ([]model.FileDescriptor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	var candidates []model.FileDescriptor
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("unreadable path skipped", zap.String("path", p), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			return nil
		}

		switch strings.ToLower(filepath.Ext(p)) {
		case ".csv":
			if re.MatchString(d.Name()) {
				candidates = append(candidates, model.FileDescriptor{
					Path: p,
					Kind: model.KindPlain,
				})
			}
		case ".zip":
			candidates = append(candidates, scanArchive(p, re)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return candidates, nil
}

// scanArchive lists matching .csv members of a ZIP archive.
func scanArchive(archivePath string, re *regexp.Regexp) []model.FileDescriptor {
	archive, err := zip.OpenReader(archivePath)
	if err != nil {
		logger.Warn("malformed zip archive skipped",
			zap.String("archive", archivePath), zap.Error(err))
		return nil
	}
	defer archive.Close()

	var members []model.FileDescriptor
	for _, member := range archive.File {
		if member.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(member.Name), ".csv") {
			continue
		}
		if !re.MatchString(path.Base(member.Name)) {
			continue
		}
		members = append(members, model.FileDescriptor{
			ArchivePath: archivePath,
			Member:      member.Name,
			Kind:        model.KindArchived,
		})
	}
	return members
}
