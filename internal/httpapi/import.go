package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/davitran/accountd/internal/account"
)

// maxImportSize caps the uploaded spreadsheet at 8 MB.
const maxImportSize = 8 << 20

// rowsFromUpload reads the "file" part of a multipart upload as an xlsx
// workbook and maps its first sheet to import rows. The first row is the
// header; column names match case-insensitively with spaces and underscores
// ignored, so "First Name", "first_name", and "firstName" all work.
func rowsFromUpload(r *http.Request) ([]account.ImportRow, error) {
	if err := r.ParseMultipartForm(maxImportSize); err != nil {
		return nil, errors.New("expected a multipart upload with a file field")
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("missing file field")
	}
	defer file.Close()

	wb, err := excelize.OpenReader(file)
	if err != nil {
		return nil, errors.New("file is not a readable xlsx workbook")
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return nil, errors.New("sheet has no data rows")
	}

	cols := headerIndex(rows[0])
	if _, ok := cols["email"]; !ok {
		return nil, errors.New("missing email column")
	}
	if _, ok := cols["password"]; !ok {
		return nil, errors.New("missing password column")
	}

	out := make([]account.ImportRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		out = append(out, account.ImportRow{
			Email:     strings.TrimSpace(cell(row, cols, "email")),
			Password:  cell(row, cols, "password"),
			FirstName: strings.TrimSpace(cell(row, cols, "firstname")),
			LastName:  strings.TrimSpace(cell(row, cols, "lastname")),
			Role:      strings.ToLower(strings.TrimSpace(cell(row, cols, "role"))),
		})
	}
	return out, nil
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.ReplaceAll(key, " ", "")
		key = strings.ReplaceAll(key, "_", "")
		if key != "" {
			cols[key] = i
		}
	}
	return cols
}

func cell(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
