package repositories

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alimgiray/champions/internal/models"
	"github.com/alimgiray/champions/pkg/logger"
	"github.com/sirupsen/logrus"
)

// ChampionRepository stores champions in an append-only CSV ledger.
// Every record occupies exactly one newline-terminated line.
type ChampionRepository struct {
	path string
}

func NewChampionRepository(path string) *ChampionRepository {
	return &ChampionRepository{path: path}
}

// Path returns the ledger file location
func (r *ChampionRepository) Path() string {
	return r.path
}

// LoadNames reads every champion name recorded so far. A missing file is
// an empty ledger. Rows that are malformed, short of columns, have no name,
// or were cut off by a crash (no trailing newline) are skipped.
func (r *ChampionRepository) LoadNames() ([]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.WithField("path", r.path).Info("Ledger not found, it will be created on first write")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	content := string(data)
	lines := strings.Split(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		if tail := lines[len(lines)-1]; tail != "" && len(lines) > 1 {
			logger.WithFields(logrus.Fields{"path": r.path, "line": len(lines)}).
				Warn("Skipping incomplete last ledger row")
		}
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil, nil
	}

	header, err := parseLedgerLine(lines[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger header: %w", err)
	}

	nameCol := -1
	for i, column := range header {
		if strings.TrimSpace(column) == "name" {
			nameCol = i
			break
		}
	}
	if nameCol == -1 {
		logger.WithField("path", r.path).Warn("Ledger has no name column, starting with an empty ledger")
		return nil, nil
	}

	var names []string
	for i, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry := logger.WithFields(logrus.Fields{"path": r.path, "line": i + 2})
		record, err := parseLedgerLine(line)
		if err != nil {
			entry.WithError(err).Warn("Skipping malformed ledger row")
			continue
		}
		if len(record) < len(header) {
			entry.Warn("Skipping ledger row with missing fields")
			continue
		}

		name := strings.TrimSpace(record[nameCol])
		if name == "" {
			continue
		}
		names = append(names, name)
	}

	return names, nil
}

// parseLedgerLine decodes a single ledger line. Quotes must be balanced
// within the line, so a torn row never swallows the rows after it.
func parseLedgerLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(strings.TrimSuffix(line, "\r")))
	reader.FieldsPerRecord = -1

	record, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	return record, err
}

// Append writes one champion to the end of the ledger, writing the header
// first when the file is empty. Existing content is never rewritten; if
// the previous write was cut off, the record starts on a fresh line.
func (r *ChampionRepository) Append(champion *models.Champion) error {
	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat ledger: %w", err)
	}

	var buf bytes.Buffer
	if info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := file.ReadAt(last, info.Size()-1); err != nil {
			return fmt.Errorf("failed to read ledger tail: %w", err)
		}
		if last[0] != '\n' {
			buf.WriteByte('\n')
		}
	}

	writer := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := writer.Write(models.ChampionHeader); err != nil {
			return fmt.Errorf("failed to encode ledger header: %w", err)
		}
	}
	if err := writer.Write(champion.Row()); err != nil {
		return fmt.Errorf("failed to encode champion %s: %w", champion.Name, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to encode champion %s: %w", champion.Name, err)
	}

	// Single write so a crash can lose at most this record
	if _, err := file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append champion %s: %w", champion.Name, err)
	}

	return file.Sync()
}
