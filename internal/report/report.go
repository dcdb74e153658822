// =============================================================================
// CTe/NFe Key Linker - Report Formatter
// =============================================================================
//
// This module renders the aggregated LinkMap as a text report.
//
// OUTPUT FORMAT (one line per CTe key, ascending):
//   cte: <44-digit key>, <N> nfes: [<key1>, <key2>, ...]
//
// The NFe keys of a line are sorted and unquoted. An NFe key equal to the
// CTe key of its own line is not listed.
//
// =============================================================================

package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ginjaninja78/cte-nfe-linker/internal/apperrors"
	"github.com/ginjaninja78/cte-nfe-linker/internal/types"
)

// Summary holds the distinct key counts of a rendered report.
type Summary struct {
	TransportKeys int
	InvoiceKeys   int
}

// Line is one rendered report entry.
type Line struct {
	Transport string
	Invoices  []string
}

// String formats the line as it appears in the report.
func (l Line) String() string {
	return fmt.Sprintf("cte: %s, %d nfes: [%s]", l.Transport, len(l.Invoices), strings.Join(l.Invoices, ", "))
}

// Lines returns the report entries in transport-key order together with the
// summary counts.
func Lines(links types.LinkMap) ([]Line, Summary) {
	ctes := links.TransportKeys()
	lines := make([]Line, 0, len(ctes))
	invoices := make(types.KeySet)

	for _, cte := range ctes {
		var nfes []string
		for _, nfe := range links.InvoiceKeys(cte) {
			if nfe == cte {
				continue
			}
			nfes = append(nfes, nfe)
			invoices.Add(nfe)
		}
		lines = append(lines, Line{Transport: cte, Invoices: nfes})
	}

	return lines, Summary{TransportKeys: len(lines), InvoiceKeys: len(invoices)}
}

// Render writes the report to w.
func Render(w io.Writer, links types.LinkMap) (Summary, error) {
	lines, summary := Lines(links)

	bw := bufio.NewWriter(w)
	for _, line := range lines {
		if _, err := fmt.Fprintln(bw, line.String()); err != nil {
			return Summary{}, err
		}
	}
	if err := bw.Flush(); err != nil {
		return Summary{}, err
	}

	return summary, nil
}

// WriteFile renders the report into the file at path, replacing it.
//
// RETURNS:
//   - The summary counts.
//   - A *apperrors.FileWriteError if the file cannot be created or written.
func WriteFile(path string, links types.LinkMap) (Summary, error) {
	file, err := os.Create(path)
	if err != nil {
		return Summary{}, &apperrors.FileWriteError{Path: path, Err: err}
	}

	summary, err := Render(file, links)
	if err != nil {
		file.Close()
		return Summary{}, &apperrors.FileWriteError{Path: path, Err: err}
	}

	if err := file.Close(); err != nil {
		return Summary{}, &apperrors.FileWriteError{Path: path, Err: err}
	}

	return summary, nil
}
