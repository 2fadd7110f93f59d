// Package books loads the reference data the engine filters by: the tracked
// ERC-20 token list and the per-chain counterparty note books.
package books

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lncr/reports-helpbot1/internal/types"
)

// NoteBook maps counterparty addresses to human-readable notes.
type NoteBook []noteEntry

type noteEntry struct {
	Address string
	Note    string
}

// Lookup returns the note registered for the address, matched
// case-insensitively.
func (b NoteBook) Lookup(address string) (string, bool) {
	for _, entry := range b {
		if strings.EqualFold(entry.Address, address) {
			return entry.Note, true
		}
	}
	return "", false
}

// LoadTokens reads a token list CSV with an "address,symbol,decimals" header.
func LoadTokens(path string) (types.AddressBook, error) {
	rows, err := readCSV(path, 3)
	if err != nil {
		return nil, fmt.Errorf("load token list %s: %w", path, err)
	}

	book := make(types.AddressBook, 0, len(rows))
	for _, row := range rows {
		decimals, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, fmt.Errorf("load token list %s: decimals for %s: %w", path, row[0], err)
		}
		book = append(book, types.Token{Address: row[0], Symbol: row[1], Decimals: decimals})
	}
	return book, nil
}

// LoadNotes reads a note book CSV with an "address,note" header.
func LoadNotes(path string) (NoteBook, error) {
	rows, err := readCSV(path, 2)
	if err != nil {
		return nil, fmt.Errorf("load note book %s: %w", path, err)
	}

	book := make(NoteBook, 0, len(rows))
	for _, row := range rows {
		book = append(book, noteEntry{Address: row[0], Note: row[1]})
	}
	return book, nil
}

func readCSV(path string, fields int) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = fields
	reader.TrimLeadingSpace = true

	var rows [][]string
	header := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if header {
			header = false
			continue
		}
		rows = append(rows, row)
	}
}
