package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func checkerboard(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func uniform(size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestSharpness(t *testing.T) {
	tests := []struct {
		name    string
		img     *image.Gray
		blurry  bool
		wantMin float64
	}{
		{"uniform", uniform(32), true, 0},
		{"too small to score", checkerboard(2), true, 0},
		{"checkerboard", checkerboard(32), false, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sharpness(tt.img)
			if (got < DefaultBlurThreshold) != tt.blurry {
				t.Errorf("Sharpness() = %v, blurry want %v", got, tt.blurry)
			}
			if got < tt.wantMin {
				t.Errorf("Sharpness() = %v, want at least %v", got, tt.wantMin)
			}
		})
	}
}

func TestToGrayDownscales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 250))
	got := toGray(img, 500).Bounds()
	if got.Dx() != 500 || got.Dy() != 125 {
		t.Errorf("toGray() bounds = %v, want 500x125", got)
	}

	small := toGray(image.NewRGBA(image.Rect(0, 0, 40, 30)), 500).Bounds()
	if small.Dx() != 40 || small.Dy() != 30 {
		t.Errorf("toGray() resized a small image to %v", small)
	}
}

func TestDistance(t *testing.T) {
	d, err := Distance(fingerprintOf(0), fingerprintOf(0b1011))
	if err != nil {
		t.Fatalf("Distance() error = %v", err)
	}
	if d != 3 {
		t.Errorf("Distance() = %d, want 3", d)
	}

	if _, err := Distance(Fingerprint{1, 2}, fingerprintOf(0)); err == nil {
		t.Error("Distance() accepted a short fingerprint")
	}
}

func TestGroupDuplicatesTransitive(t *testing.T) {
	records := []Record{
		{ID: "a", Fingerprint: fingerprintOf(0)},
		{ID: "b", Fingerprint: fingerprintOf(0b11111)},
		{ID: "c", Fingerprint: fingerprintOf(0b1111111111)},
		{ID: "broken", Fingerprint: fingerprintOf(0), Error: "decode image: unexpected EOF"},
		{ID: "far", Fingerprint: fingerprintOf(^uint64(0))},
	}

	groups := GroupDuplicates(records, DefaultMaxDistance)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1: %+v", len(groups), groups)
	}

	g := groups[0]
	if g.Representative != "a" || strings.Join(g.Members, ",") != "a,b,c" {
		t.Errorf("group = %+v, want a representing a,b,c", g)
	}
	if got := strings.Join(records[0].Duplicates, ","); got != "b,c" {
		t.Errorf("representative duplicates = %s, want b,c", got)
	}
	if records[2].DuplicateOf != "a" || !records[2].IsDuplicate {
		t.Errorf("c = %+v, want duplicate of a", records[2])
	}
	if records[3].IsDuplicate || records[4].IsDuplicate {
		t.Error("errored or distant record joined a group")
	}
}

func TestAnalyze(t *testing.T) {
	sharp := encodePNG(t, checkerboard(64))
	flat := encodePNG(t, uniform(64))
	analyzer := NewAnalyzer(Options{Workers: 2})

	t.Run("blur", func(t *testing.T) {
		report := analyzer.Analyze(context.Background(), []Embedded{
			{Sheet: "Sheet1", Cell: "B2", Extension: ".png", Data: sharp},
			{Sheet: "Sheet1", Cell: "A2", Extension: ".png", Data: flat},
		})

		if report.TotalImages != 2 || report.BlurryImages != 1 {
			t.Fatalf("report = %+v, want 2 images, 1 blurry", report)
		}
		first, second := report.Results[0], report.Results[1]
		if first.Position != "A2" || !first.IsBlurry {
			t.Errorf("first = %s blurry %v, want A2 blurry", first.Position, first.IsBlurry)
		}
		if second.Position != "B2" || second.IsBlurry {
			t.Errorf("second = %s blurry %v, want B2 sharp", second.Position, second.IsBlurry)
		}
		if first.MimeType != "image/png" || len(first.Fingerprint) != 8 {
			t.Errorf("first = %+v, want png with fingerprint", first)
		}
	})

	t.Run("duplicates and decode failures", func(t *testing.T) {
		report := analyzer.Analyze(context.Background(), []Embedded{
			{Sheet: "Sheet1", Cell: "B3", Extension: ".png", Data: sharp},
			{Sheet: "Sheet1", Cell: "B2", Extension: ".png", Data: sharp},
			{Sheet: "Sheet1", Cell: "C4", Extension: ".jpeg", Data: []byte("not an image")},
		})

		if report.DuplicateGroups != 1 || len(report.Groups) != 1 {
			t.Fatalf("report = %+v, want one duplicate group", report)
		}
		g := report.Groups[0]
		if g.Representative != "Sheet1!B2#2" || strings.Join(g.Members, ",") != "Sheet1!B2#2,Sheet1!B3#1" {
			t.Errorf("group = %+v, want B2 representing B2,B3", g)
		}

		broken := report.Results[2]
		if broken.Position != "C4" || broken.Error == "" || broken.IsDuplicate {
			t.Errorf("broken = %+v, want C4 with an error outside any group", broken)
		}
		if broken.Row != 4 || broken.Column != "C" || broken.MimeType != "image/jpeg" {
			t.Errorf("broken position = %s%d %s", broken.Column, broken.Row, broken.MimeType)
		}
		if _, ok := report.Group("Sheet1!B3#1"); !ok {
			t.Error("Group() did not find B3")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		report := analyzer.Analyze(ctx, []Embedded{{Sheet: "Sheet1", Cell: "A1", Data: sharp}})
		if report.Results[0].Error == "" {
			t.Error("cancelled pass scored an image")
		}
	})
}

func TestAnalyzeWorkbook(t *testing.T) {
	analyzer := NewAnalyzer(Options{})

	t.Run("legacy workbook", func(t *testing.T) {
		data := append(append([]byte{}, oleSignature...), make([]byte, 512)...)
		report := analyzer.AnalyzeWorkbook(context.Background(), data, "")
		if report.Warning != LegacyWorkbookWarning || report.TotalImages != 0 {
			t.Errorf("report = %+v, want legacy warning", report)
		}
	})

	t.Run("unreadable workbook", func(t *testing.T) {
		report := analyzer.AnalyzeWorkbook(context.Background(), []byte("plain text"), "")
		if !strings.HasPrefix(report.Warning, "image checks skipped") {
			t.Errorf("Warning = %q", report.Warning)
		}
	})

	t.Run("embedded pictures", func(t *testing.T) {
		f := excelize.NewFile()
		defer f.Close()

		pic := encodePNG(t, checkerboard(64))
		for _, cell := range []string{"D2", "D3"} {
			if err := f.AddPictureFromBytes("Sheet1", cell, &excelize.Picture{Extension: ".png", File: pic}); err != nil {
				t.Fatalf("AddPictureFromBytes(%s) error = %v", cell, err)
			}
		}
		buf, err := f.WriteToBuffer()
		if err != nil {
			t.Fatalf("WriteToBuffer() error = %v", err)
		}

		report := analyzer.AnalyzeWorkbook(context.Background(), buf.Bytes(), "")
		if report.Warning != "" {
			t.Fatalf("Warning = %q", report.Warning)
		}
		if report.TotalImages != 2 || report.DuplicateGroups != 1 {
			t.Errorf("report = %+v, want 2 images in one group", report)
		}
		if report.Results[0].Position != "D2" || report.Results[0].Row != 2 {
			t.Errorf("first image at %s, want D2", report.Results[0].Position)
		}
	})
}

func TestFingerprintJSON(t *testing.T) {
	rec := Record{ID: "x", Fingerprint: fingerprintOf(0xff), RawData: []byte{1, 2, 3}}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"fingerprint":"00000000000000ff"`) {
		t.Errorf("JSON = %s, want hex fingerprint", out)
	}
	if strings.Contains(out, "RawData") || strings.Contains(out, "AQID") {
		t.Errorf("JSON = %s, raw bytes leaked", out)
	}

	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !bytes.Equal(back.Fingerprint, rec.Fingerprint) {
		t.Errorf("fingerprint = %x, want %x", back.Fingerprint, rec.Fingerprint)
	}
}
