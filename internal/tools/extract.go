package tools

import (
	"fmt"
	"os"
)

// Extractor unpacks a wrapper archive into a directory.
type Extractor interface {
	Extract(archive, dest string) error
}

// SevenZipExtractor unpacks .tar.gz archives with two chained 7z processes,
// which also works on Windows hosts without tar.
type SevenZipExtractor struct {
	Runner  Runner
	Command []string // e.g. ["7z"]
}

func (e *SevenZipExtractor) Extract(archive, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	from := append(append([]string{}, e.Command...), "x", "-so", "-bd", archive)
	to := append(append([]string{}, e.Command...), "x", "-si", "-mmt", "-bd", "-ttar", "-o"+dest)
	return e.Runner.Pipe("", from, to)
}

// TarExtractor unpacks .tar.gz archives with a tar binary.
type TarExtractor struct {
	Runner  Runner
	Command []string // e.g. ["tar"]
}

func (e *TarExtractor) Extract(archive, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	argv := append(append([]string{}, e.Command...), "-xzf", archive, "-C", dest)
	return e.Runner.Run("", argv)
}

// NewExtractor returns the extractor named by kind ("7z" or "tar").
func NewExtractor(kind string, r Runner, command string) (Extractor, error) {
	argv, err := Command(command)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "7z", "sevenzip":
		return &SevenZipExtractor{Runner: r, Command: argv}, nil
	case "tar":
		return &TarExtractor{Runner: r, Command: argv}, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q (want 7z or tar)", kind)
	}
}
