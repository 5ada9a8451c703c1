// Package imaging screens images embedded in xlsx workbooks for blur and
// near-duplication.
//
// Each embedded image is decoded, scored for sharpness (variance of the
// Laplacian over a grayscale downscale) and fingerprinted with a 64-bit
// difference hash. Images whose fingerprints differ by at most
// Options.MaxDistance bits are linked, and links are closed transitively
// into duplicate groups.
package imaging

import (
	"encoding/hex"
	"fmt"
)

// Fingerprint is an 8-byte perceptual hash. It renders as hex in JSON.
type Fingerprint []byte

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(f)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode fingerprint: %w", err)
	}
	*f = b
	return nil
}

// Embedded is one picture anchored to a worksheet cell.
type Embedded struct {
	Sheet     string
	Cell      string // Anchor cell, e.g. "B12"
	Extension string // File extension reported by the workbook, e.g. ".png"
	Data      []byte
}

// Record is the analysis of one embedded image.
type Record struct {
	ID          string      `json:"id"`
	Sheet       string      `json:"sheet"`
	Row         int         `json:"row"`
	Column      string      `json:"column"`
	Position    string      `json:"position"`
	Sharpness   float64     `json:"sharpness"`
	Fingerprint Fingerprint `json:"fingerprint,omitempty"`
	MimeType    string      `json:"mimeType"`
	RawData     []byte      `json:"-"`

	IsBlurry    bool     `json:"isBlurry"`
	IsDuplicate bool     `json:"isDuplicate"`
	DuplicateOf string   `json:"duplicateOf,omitempty"` // Representative id for non-representative members
	Duplicates  []string `json:"duplicates,omitempty"`  // Other member ids, set on the representative only
	Error       string   `json:"error,omitempty"`       // Decode failure; the image is excluded from grouping

	colNum int
	seq    int
}

// DuplicateGroup is a transitively closed set of near-identical images.
type DuplicateGroup struct {
	Representative string   `json:"representative"`
	Members        []string `json:"members"` // All member ids, representative first
}

// Report is the outcome of one image pass.
type Report struct {
	TotalImages     int              `json:"totalImages"`
	BlurryImages    int              `json:"blurryImages"`
	DuplicateGroups int              `json:"duplicateGroups"`
	Groups          []DuplicateGroup `json:"groups,omitempty"`
	Results         []Record         `json:"results"`
	Warning         string           `json:"warning,omitempty"`
}

// Group returns the duplicate group containing id.
func (r *Report) Group(id string) (DuplicateGroup, bool) {
	for _, g := range r.Groups {
		for _, m := range g.Members {
			if m == id {
				return g, true
			}
		}
	}
	return DuplicateGroup{}, false
}
