package sandbox

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// Metadata is the subset of the sandbox's key:value metadata file this
// driver understands. Unknown keys are read and ignored rather than
// rejected, since the sandbox may emit fields (cg-mem, exitsig, message,
// ...) this worker has no use for.
type Metadata struct {
	Status      string
	TimeSeconds float64
	MaxRSSKB    int64
}

// ParseMetadataFile reads and parses a sandbox metadata file. A missing file
// is treated as an empty Metadata (status ""), since the sandbox only
// creates the file once it has something to report.
func ParseMetadataFile(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, nil
		}
		return Metadata{}, err
	}
	defer f.Close()

	var meta Metadata
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch key {
		case "status":
			meta.Status = value
		case "time":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				meta.TimeSeconds = v
			}
		case "max-rss":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				meta.MaxRSSKB = v
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}
