// Package importsources loads the curated source-URL list from a CSV file
// into the sources table.
package importsources

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codeanster/washington-air-quality/internal/database"
	"github.com/codeanster/washington-air-quality/internal/models"
)

// Importer handles the source import process
type Importer struct {
	db *database.DB
}

// NewImporter creates a new source importer
func NewImporter(db *database.DB) *Importer {
	return &Importer{db: db}
}

// ImportSources imports feed sources from a CSV file. The file must have a
// 'url' column; 'comments' and 'status' are optional.
func (i *Importer) ImportSources(csvPath string) error {
	log.Info().Str("csv", csvPath).Msg("Starting source import")

	file, err := os.Open(csvPath)
	if err != nil {
		return fmt.Errorf("failed to open sources CSV: %w", err)
	}
	defer file.Close()

	if err := i.parseAndImport(file); err != nil {
		return fmt.Errorf("failed to import sources: %w", err)
	}

	log.Info().Msg("Import completed successfully")
	return nil
}

func (i *Importer) parseAndImport(csvData io.Reader) error {
	reader := csv.NewReader(csvData)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return err
	}

	log.Debug().Strs("header", header).Msg("CSV header read")

	urlIdx := findColumnIndex(header, "url")
	if urlIdx < 0 {
		return fmt.Errorf("required column 'url' not found in CSV header")
	}
	commentsIdx := findColumnIndex(header, "comments")
	statusIdx := findColumnIndex(header, "status")

	lineCount := 1 // Header was already read
	successCount := 0
	var importErrors []string

	for {
		lineCount++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", lineCount).Msg("Error reading CSV line")
			importErrors = append(importErrors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}

		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			log.Debug().Int("line", lineCount).Msg("Skipping empty row")
			continue
		}

		source := models.NewSource()
		source.URL = safeGetValue(record, urlIdx).String
		source.Comments = safeGetValue(record, commentsIdx)
		if status := safeGetValue(record, statusIdx); status.Valid {
			source.Status = status.String
		}

		if source.URL == "" {
			log.Warn().Int("line", lineCount).Msg("Skipping row with empty URL")
			importErrors = append(importErrors, fmt.Sprintf("line %d: empty URL", lineCount))
			continue
		}

		logger := log.With().
			Int("line", lineCount).
			Str("url", source.URL).
			Logger()

		if err := i.db.InsertSource(source); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				logger.Warn().Msg("Duplicate URL")
				importErrors = append(importErrors, fmt.Sprintf("line %d: duplicate URL: %s", lineCount, source.URL))
			} else {
				logger.Error().Err(err).Msg("Failed to insert source")
				importErrors = append(importErrors, fmt.Sprintf("line %d: %v", lineCount, err))
			}
			continue
		}

		successCount++
		logger.Debug().Msg("Source inserted successfully")
	}

	log.Info().
		Int("total", lineCount-1).
		Int("success", successCount).
		Int("errors", len(importErrors)).
		Msg("Import summary")

	fmt.Printf("Imported %d sources successfully\n", successCount)
	if len(importErrors) > 0 {
		fmt.Printf("Encountered %d errors:\n", len(importErrors))
		for _, e := range importErrors {
			fmt.Printf("  - %s\n", e)
		}
	}

	return nil
}

func findColumnIndex(header []string, columnName string) int {
	for i, col := range header {
		if strings.EqualFold(col, columnName) {
			return i
		}
	}
	return -1
}

// safeGetValue returns a sql.NullString from a record at the specified index.
// If the index is out of bounds or the value is empty, it returns an invalid NullString.
func safeGetValue(record []string, index int) sql.NullString {
	if index >= 0 && index < len(record) && record[index] != "" {
		return sql.NullString{
			String: record[index],
			Valid:  true,
		}
	}
	return sql.NullString{Valid: false}
}
