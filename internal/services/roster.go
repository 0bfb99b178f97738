package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

type RosterRow struct {
	Row    int
	Nom    string
	Prenom string
	Email  string
}

type ImportError struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

type ImportSummary struct {
	TotalRows int `json:"total_rows"`
	Inserted  int `json:"inserted"`
	Failed    int `json:"failed"`
}

type ImportResult struct {
	Summary ImportSummary  `json:"summary"`
	Errors  []ImportError  `json:"errors"`
	Fiches  []ConsoleFiche `json:"fiches"`
}

var ErrEmptyRoster = errors.New("file is empty")

var rosterHeaders = []string{"nom", "prenom", "email"}

// ParseRoster reads a nom/prenom/email CSV. Comma or semicolon delimiters,
// a UTF-8 BOM and any line ending are accepted. Rows that cannot be read
// come back as ImportErrors instead of failing the whole file.
func ParseRoster(data []byte) ([]RosterRow, []ImportError, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, ErrEmptyRoster
	}
	data = bytes.ReplaceAll(data, []byte{'\r', '\n'}, []byte{'\n'})
	data = bytes.ReplaceAll(data, []byte{'\r'}, []byte{'\n'})
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	delimiter := ','
	firstLineEnd := bytes.IndexByte(data, '\n')
	if firstLineEnd == -1 {
		firstLineEnd = len(data)
	}
	firstLine := data[:firstLineEnd]
	if bytes.Contains(firstLine, []byte{';'}) && !bytes.Contains(firstLine, []byte{','}) {
		delimiter = ';'
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	r.Comma = delimiter

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read header", ErrInvalidInput)
	}
	headerIdx := make(map[string]int, len(header))
	for idx, col := range header {
		key := strings.ToLower(strings.Trim(strings.TrimSpace(col), "\"'"))
		key = strings.ReplaceAll(key, "é", "e")
		if key != "" {
			headerIdx[key] = idx
		}
	}
	for _, key := range rosterHeaders {
		if _, ok := headerIdx[key]; !ok {
			return nil, nil, fmt.Errorf("%w: missing header column: %s", ErrInvalidInput, key)
		}
	}

	getVal := func(record []string, key string) string {
		idx := headerIdx[key]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var (
		rows     []RosterRow
		failures []ImportError
	)
	rowNum := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			failures = append(failures, ImportError{Row: rowNum, Error: fmt.Sprintf("failed to read row: %v", err)})
			continue
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		rows = append(rows, RosterRow{
			Row:    rowNum,
			Nom:    getVal(record, "nom"),
			Prenom: getVal(record, "prenom"),
			Email:  getVal(record, "email"),
		})
	}
	return rows, failures, nil
}

// Import creates one fiche per roster row. Per-row failures are reported,
// not fatal.
func (s *FicheService) Import(ctx context.Context, sess *Session, data []byte) (*ImportResult, error) {
	if err := RequireSession(sess); err != nil {
		return nil, err
	}
	rows, failures, err := ParseRoster(data)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Errors: failures, Fiches: []ConsoleFiche{}}
	for _, row := range rows {
		cf, _, err := s.Create(ctx, sess, CreateFicheInput{Nom: row.Nom, Prenom: row.Prenom, Email: row.Email})
		if err != nil {
			msg := err.Error()
			if !errors.Is(err, ErrInvalidInput) && !errors.Is(err, ErrInvalidEmail) && !errors.Is(err, ErrCodeSpaceExhausted) {
				msg = "failed to create fiche"
			}
			res.Errors = append(res.Errors, ImportError{Row: row.Row, Email: row.Email, Error: msg})
			continue
		}
		res.Fiches = append(res.Fiches, *cf)
	}
	if res.Errors == nil {
		res.Errors = []ImportError{}
	}
	res.Summary = ImportSummary{
		TotalRows: len(rows) + len(failures),
		Inserted:  len(res.Fiches),
		Failed:    len(res.Errors),
	}
	return res, nil
}
