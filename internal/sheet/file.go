package sheet

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rtpalgo/terminal/internal/gateway"
	"github.com/rtpalgo/terminal/internal/types"
)

// FileConfig names the CSV files backing a FileSheet. Empty output
// paths disable the corresponding pane.
type FileConfig struct {
	WatchFile     string
	StateFile     string
	OrderBookFile string
	TickerFile    string
	ProfileFile   string
}

// FileSheet is a Sheet backed by plain CSV files. The watch file is
// read on every poll; result panes are rewritten whole via a temp file
// and rename so readers never see a torn write.
type FileSheet struct {
	cfg    FileConfig
	logger *slog.Logger
}

// NewFileSheet creates a CSV-backed sheet.
func NewFileSheet(cfg FileConfig, logger *slog.Logger) *FileSheet {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSheet{cfg: cfg, logger: logger}
}

var watchHeader = []string{
	"instrument", "side", "product", "quantity", "limit_price",
	"trigger", "trigger_price", "stoploss", "target", "action",
}

// Rows reads the watch file. The row id is the data line index, so a
// row keeps its id across polls as long as the user does not reorder
// lines.
func (s *FileSheet) Rows(ctx context.Context) ([]types.RowInput, error) {
	records, err := s.readWatch()
	if err != nil {
		return nil, err
	}

	rows := make([]types.RowInput, 0, len(records))
	for i, rec := range records {
		rows = append(rows, s.parseRow(i, rec))
	}
	return rows, nil
}

// ClearAction blanks the action cell of one row and rewrites the watch
// file in place.
func (s *FileSheet) ClearAction(ctx context.Context, rowID int) error {
	records, err := s.readWatch()
	if err != nil {
		return err
	}
	if rowID < 0 || rowID >= len(records) {
		return fmt.Errorf("%w: row %d", types.ErrRowOutOfRange, rowID)
	}

	rec := records[rowID]
	if len(rec) == len(watchHeader) {
		rec[len(watchHeader)-1] = ""
	}

	out := make([][]string, 0, len(records)+1)
	out = append(out, watchHeader)
	out = append(out, records...)
	return s.writeCSV(s.cfg.WatchFile, out)
}

// WriteRowStates writes the status pane.
func (s *FileSheet) WriteRowStates(ctx context.Context, states []types.RowState) error {
	if s.cfg.StateFile == "" {
		return nil
	}

	out := [][]string{{"row", "entry_order_id", "status", "exit_result"}}
	for _, st := range states {
		out = append(out, []string{
			strconv.Itoa(st.RowID),
			st.EntryOrderID,
			string(st.Status),
			st.ExitResult,
		})
	}
	return s.writeCSV(s.cfg.StateFile, out)
}

// WriteTicker writes the live market snapshot pane.
func (s *FileSheet) WriteTicker(ctx context.Context, ticks []types.Tick) error {
	if s.cfg.TickerFile == "" {
		return nil
	}

	out := [][]string{{
		"token", "open", "high", "low", "close", "last_price",
		"volume", "vwap", "best_bid", "best_ask", "open_interest", "updated_at",
	}}
	for _, t := range ticks {
		updated := ""
		if !t.UpdatedAt.IsZero() {
			updated = t.UpdatedAt.Format(time.RFC3339)
		}
		out = append(out, []string{
			t.Token,
			t.Open.String(), t.High.String(), t.Low.String(), t.Close.String(),
			t.LastPrice.String(),
			strconv.FormatInt(t.Volume, 10),
			t.VWAP.String(), t.BestBid.String(), t.BestAsk.String(),
			strconv.FormatInt(t.OpenInterest, 10),
			updated,
		})
	}
	return s.writeCSV(s.cfg.TickerFile, out)
}

// WriteOrderLog writes the order book pane.
func (s *FileSheet) WriteOrderLog(ctx context.Context, entries []types.OrderLogEntry) error {
	if s.cfg.OrderBookFile == "" {
		return nil
	}

	out := [][]string{{
		"id", "timestamp", "order_id", "side", "product",
		"instrument", "trading_symbol", "quantity", "price", "kind", "status",
	}}
	for _, e := range entries {
		out = append(out, []string{
			e.ID,
			e.Timestamp.Format(time.RFC3339),
			e.OrderID,
			e.Side.String(),
			e.Product.String(),
			e.Instrument,
			e.TradingSymbol,
			strconv.Itoa(e.Quantity),
			e.Price.String(),
			e.Kind.String(),
			e.Status,
		})
	}
	return s.writeCSV(s.cfg.OrderBookFile, out)
}

// WriteProfile writes the account margin pane.
func (s *FileSheet) WriteProfile(ctx context.Context, margin gateway.MarginSummary) error {
	if s.cfg.ProfileFile == "" {
		return nil
	}

	out := [][]string{
		{"account_id", "cash_margin", "credits", "exposure_margin", "net", "gross_exposure"},
		{
			margin.AccountID,
			margin.CashMargin.String(),
			margin.Credits.String(),
			margin.ExposureMargin.String(),
			margin.Net.String(),
			margin.GrossExposure.String(),
		},
	}
	return s.writeCSV(s.cfg.ProfileFile, out)
}

func (s *FileSheet) readWatch() ([][]string, error) {
	f, err := os.Open(s.cfg.WatchFile)
	if err != nil {
		return nil, fmt.Errorf("open watch file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read watch file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	// Drop the header line.
	return records[1:], nil
}

func (s *FileSheet) parseRow(rowID int, rec []string) types.RowInput {
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	return types.RowInput{
		RowID:        rowID,
		Instrument:   field(0),
		Side:         types.ParseSide(field(1)),
		Product:      types.ParseProductType(field(2)),
		Quantity:     s.parseInt(rowID, field(3)),
		LimitPrice:   s.parseDecimal(rowID, field(4)),
		Trigger:      types.ParseTriggerDirection(field(5)),
		TriggerPrice: s.parseDecimal(rowID, field(6)),
		Stoploss:     s.parseDecimal(rowID, field(7)),
		Target:       s.parseDecimal(rowID, field(8)),
		Action:       types.ParseAction(field(9)),
	}
}

func (s *FileSheet) parseDecimal(rowID int, v string) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		s.logger.Warn("bad price on watch sheet", "row", rowID, "value", v)
		return decimal.Zero
	}
	return d
}

func (s *FileSheet) parseInt(rowID int, v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.logger.Warn("bad quantity on watch sheet", "row", rowID, "value", v)
		return 0
	}
	return n
}

// writeCSV rewrites a pane atomically.
func (s *FileSheet) writeCSV(path string, records [][]string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sheet-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
