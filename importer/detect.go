package importer

import (
	"archive/zip"
	"strings"

	"github.com/playback-history/collector/errkind"
	"github.com/playback-history/collector/models"
)

// matchedEntry pairs a zip entry with the format its name identifies it as.
type matchedEntry struct {
	file   *zip.File
	format models.ImportFormat
}

// detectFormat scans entry names for the two "Download your data" export
// shapes Spotify ships, in priority order: extended history wins over
// account-data if an archive somehow carries both. Only entries matching
// the winning format are returned.
func detectFormat(files []*zip.File) ([]matchedEntry, models.ImportFormat, error) {
	var extended, accountData []*zip.File

	for _, f := range files {
		name := baseName(f.Name)
		switch {
		case matchesExtended(name):
			extended = append(extended, f)
		case matchesAccountData(name):
			accountData = append(accountData, f)
		}
	}

	if len(extended) > 0 {
		return entriesFor(extended, models.ImportFormatExtended), models.ImportFormatExtended, nil
	}
	if len(accountData) > 0 {
		return entriesFor(accountData, models.ImportFormatAccountData), models.ImportFormatAccountData, nil
	}
	return nil, models.ImportFormatUnknown, errkind.New(errkind.UnrecognizedFormat,
		"archive contains neither endsong_*.json/Streaming_History_Audio_*.json nor StreamingHistory*.json entries")
}

func entriesFor(files []*zip.File, format models.ImportFormat) []matchedEntry {
	out := make([]matchedEntry, 0, len(files))
	for _, f := range files {
		out = append(out, matchedEntry{file: f, format: format})
	}
	return out
}

func matchesExtended(name string) bool {
	return strings.HasPrefix(name, "endsong_") || strings.HasPrefix(name, "Streaming_History_Audio_")
}

func matchesAccountData(name string) bool {
	return strings.HasPrefix(name, "StreamingHistory")
}

func baseName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
