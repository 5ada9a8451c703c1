package imaging

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// oleSignature is the compound-file header of legacy binary .xls workbooks.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// IsLegacyWorkbook reports whether data is a legacy binary .xls file.
func IsLegacyWorkbook(data []byte) bool {
	return bytes.HasPrefix(data, oleSignature)
}

// ExtractEmbedded returns the pictures anchored in sheet, grouped by
// anchor cell in the order the workbook lists them.
func ExtractEmbedded(f *excelize.File, sheet string) ([]Embedded, error) {
	cells, err := f.GetPictureCells(sheet)
	if err != nil {
		return nil, fmt.Errorf("list picture cells: %w", err)
	}

	var out []Embedded
	for _, cell := range cells {
		pics, err := f.GetPictures(sheet, cell)
		if err != nil {
			return nil, fmt.Errorf("read pictures at %s: %w", cell, err)
		}
		for _, pic := range pics {
			if len(pic.File) == 0 {
				continue
			}
			out = append(out, Embedded{
				Sheet:     sheet,
				Cell:      cell,
				Extension: pic.Extension,
				Data:      pic.File,
			})
		}
	}
	return out, nil
}
