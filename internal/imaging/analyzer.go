package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"mime"
	"runtime"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

// DefaultBlurThreshold is the sharpness score below which an image is blurry.
const DefaultBlurThreshold = 60.0

// LegacyWorkbookWarning is reported for legacy .xls input.
const LegacyWorkbookWarning = "image checks skipped: legacy .xls workbooks do not expose image anchors, save the file as .xlsx"

// Options configures an Analyzer. Zero values select the defaults.
type Options struct {
	BlurThreshold float64
	MaxDistance   int
	MaxDimension  int
	Workers       int
	Logger        *slog.Logger
}

// Analyzer runs image passes. It holds no per-pass state and is safe for
// concurrent use.
type Analyzer struct {
	opts Options
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts Options) *Analyzer {
	if opts.BlurThreshold <= 0 {
		opts.BlurThreshold = DefaultBlurThreshold
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = DefaultMaxDistance
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Analyzer{opts: opts}
}

// AnalyzeWorkbook runs an image pass over one sheet of workbook bytes. An
// empty sheet selects the first sheet. Container problems never fail the
// pass; they are reported through Report.Warning.
func (a *Analyzer) AnalyzeWorkbook(ctx context.Context, data []byte, sheet string) *Report {
	if IsLegacyWorkbook(data) {
		return &Report{Results: []Record{}, Warning: LegacyWorkbookWarning}
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return &Report{Results: []Record{}, Warning: fmt.Sprintf("image checks skipped: %v", err)}
	}
	defer f.Close()

	if sheet == "" {
		if sheets := f.GetSheetList(); len(sheets) > 0 {
			sheet = sheets[0]
		}
	}

	images, err := ExtractEmbedded(f, sheet)
	if err != nil {
		return &Report{Results: []Record{}, Warning: fmt.Sprintf("image checks skipped: %v", err)}
	}
	return a.Analyze(ctx, images)
}

// Analyze scores, fingerprints and groups the given images. Results are
// ordered by anchor row, then column, then workbook order within a cell.
// A cancelled context leaves the remaining images undecoded with an error.
func (a *Analyzer) Analyze(ctx context.Context, images []Embedded) *Report {
	records := make([]Record, len(images))
	for i, img := range images {
		records[i] = newRecord(img, i)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Row != records[j].Row {
			return records[i].Row < records[j].Row
		}
		if records[i].colNum != records[j].colNum {
			return records[i].colNum < records[j].colNum
		}
		return records[i].seq < records[j].seq
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				rec.Error = err.Error()
				return nil
			}
			a.score(rec)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{TotalImages: len(records)}
	report.Groups = GroupDuplicates(records, a.opts.MaxDistance)
	report.DuplicateGroups = len(report.Groups)
	for _, r := range records {
		if r.IsBlurry {
			report.BlurryImages++
		}
	}
	report.Results = records

	a.opts.Logger.Debug("image pass complete",
		"images", report.TotalImages,
		"blurry", report.BlurryImages,
		"duplicate_groups", report.DuplicateGroups,
	)
	return report
}

// score decodes one image and fills in its sharpness and fingerprint.
func (a *Analyzer) score(rec *Record) {
	img, format, err := image.Decode(bytes.NewReader(rec.RawData))
	if err != nil {
		rec.Error = fmt.Sprintf("decode image: %v", err)
		return
	}
	if format != "" {
		rec.MimeType = "image/" + format
	}

	rec.Sharpness = Sharpness(toGray(img, a.opts.MaxDimension))
	rec.IsBlurry = rec.Sharpness < a.opts.BlurThreshold

	fp, err := ComputeFingerprint(img)
	if err != nil {
		rec.Error = err.Error()
		return
	}
	rec.Fingerprint = fp
}

func newRecord(img Embedded, seq int) Record {
	rec := Record{
		Sheet:    img.Sheet,
		Position: img.Cell,
		RawData:  img.Data,
		MimeType: mimeFor(img.Extension),
		seq:      seq,
		Column:   "-",
	}
	if col, row, err := excelize.CellNameToCoordinates(img.Cell); err == nil {
		rec.Row = row
		rec.colNum = col
		if name, err := excelize.ColumnNumberToName(col); err == nil {
			rec.Column = name
		}
	}
	rec.ID = fmt.Sprintf("%s!%s#%d", img.Sheet, img.Cell, seq+1)
	return rec
}

func mimeFor(ext string) string {
	if ext == "" {
		return "application/octet-stream"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
		return t
	}
	return "application/octet-stream"
}
