// Package export renders a user's enriched listings as a spreadsheet.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nestscout/nestscout/internal/listing"
	"github.com/xuri/excelize/v2"
)

// Sheet is the name of the worksheet holding the listings.
const Sheet = "Listings"

const maxSummary = 200

// Store provides the rows of an export.
type Store interface {
	ListCandidates(ctx context.Context, userID string) ([]listing.Candidate, error)
	ListComparisons(ctx context.Context, userID string) (map[string]listing.Comparison, error)
}

// Service produces XLSX bytes for exports.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a Service. A nil logger uses slog.Default().
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Headers are the column titles, in order.
var Headers = []string{
	"Saved",
	"Source URL",
	"Address",
	"Price",
	"Currency",
	"Size (sqm)",
	"Rooms",
	"Bedrooms",
	"Type",
	"Noise",
	"Light",
	"Match",
	"Summary",
}

// ListingsXLSX returns a workbook with one row per enriched listing of the
// user, newest first. Unknown values are left blank.
func (s *Service) ListingsXLSX(ctx context.Context, userID string) ([]byte, error) {
	start := time.Now()

	candidates, err := s.store.ListCandidates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	comparisons, err := s.store.ListComparisons(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("query comparisons: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", Sheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(Sheet, cell, h)
	}

	row := 2
	for _, c := range candidates {
		md := c.Metadata
		if md == nil {
			continue
		}
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(Sheet, cell, v)
		}

		write(1, c.Listing.SavedAt.UTC().Format("2006-01-02 15:04"))
		write(2, c.Listing.SourceURL)
		write(3, md.Address)
		writeFloat(write, 4, md.Price)
		write(5, md.Currency)
		writeFloat(write, 6, md.SizeSqm)
		writeInt(write, 7, md.Rooms)
		writeInt(write, 8, md.Bedrooms)
		write(9, md.ListingType)
		write(10, md.NoiseLevel)
		write(11, md.NaturalLight)
		if cmp, ok := comparisons[c.Listing.ID]; ok {
			write(12, cmp.Score)
			write(13, truncate(cmp.Summary, maxSummary))
		}
		row++
	}

	_ = f.SetColWidth(Sheet, "A", "A", 17) // saved
	_ = f.SetColWidth(Sheet, "B", "B", 48) // url
	_ = f.SetColWidth(Sheet, "C", "C", 40) // address
	_ = f.SetColWidth(Sheet, "D", "K", 11)
	_ = f.SetColWidth(Sheet, "M", "M", 60) // summary
	_ = f.SetPanes(Sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("listings exported",
		"user_id", userID,
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeFloat(write func(int, any), col int, v *float64) {
	if v != nil {
		write(col, *v)
	}
}

func writeInt(write func(int, any), col int, v *int) {
	if v != nil {
		write(col, *v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
