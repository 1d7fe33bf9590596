package instruments

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rtpalgo/terminal/internal/types"
)

const nfoCSV = `Token,Symbol,Trading Symbol,Instrument Name,Lot Size
35001,NIFTY,NIFTY24SEPFUT,NIFTY SEP FUT,50
35002,BANKNIFTY,BANKNIFTY24SEPFUT,BANKNIFTY SEP FUT,15
bogus,BAD,BAD24FUT,BAD ROW,1
`

const nseCSV = `Token,Symbol,Trading Symbol,Instrument Name,Lot Size
2885,RELIANCE,RELIANCE-EQ,RELIANCE,1
`

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.ImportCSV(context.Background(), "NFO", strings.NewReader(nfoCSV)); err != nil {
		t.Fatalf("ImportCSV(NFO) error: %v", err)
	}
	if _, err := s.ImportCSV(context.Background(), "NSE", strings.NewReader(nseCSV)); err != nil {
		t.Fatalf("ImportCSV(NSE) error: %v", err)
	}
	return s
}

func TestImportCSV(t *testing.T) {
	s := openTestStore(t)

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	// The bogus-token row must be skipped.
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestImportCSVReplacesExchange(t *testing.T) {
	s := openTestStore(t)

	replacement := `Token,Symbol,Trading Symbol,Instrument Name,Lot Size
35003,FINNIFTY,FINNIFTY24SEPFUT,FINNIFTY SEP FUT,40
`
	if _, err := s.ImportCSV(context.Background(), "NFO", strings.NewReader(replacement)); err != nil {
		t.Fatalf("ImportCSV() error: %v", err)
	}

	if s.Exists(context.Background(), "NIFTY SEP FUT") {
		t.Error("old NFO contract survived a re-import")
	}
	if !s.Exists(context.Background(), "FINNIFTY SEP FUT") {
		t.Error("new NFO contract missing after re-import")
	}
	// Other exchanges are untouched.
	if !s.Exists(context.Background(), "RELIANCE") {
		t.Error("NSE contract lost by NFO re-import")
	}
}

func TestImportCSVMissingColumn(t *testing.T) {
	s := openTestStore(t)

	_, err := s.ImportCSV(context.Background(), "MCX", strings.NewReader("Token,Symbol\n1,GOLD\n"))
	if err == nil {
		t.Fatal("ImportCSV() with missing columns should fail")
	}
}

func TestResolveToken(t *testing.T) {
	s := openTestStore(t)

	token, err := s.ResolveToken(context.Background(), "NIFTY SEP FUT")
	if err != nil {
		t.Fatalf("ResolveToken() error: %v", err)
	}
	if token != 35001 {
		t.Errorf("ResolveToken() = %d, want 35001", token)
	}

	_, err = s.ResolveToken(context.Background(), "NO SUCH INSTRUMENT")
	if !errors.Is(err, types.ErrUnknownInstrument) {
		t.Errorf("ResolveToken(miss) = %v, want ErrUnknownInstrument", err)
	}
}

func TestByTradingSymbol(t *testing.T) {
	s := openTestStore(t)

	c, err := s.ByTradingSymbol(context.Background(), "BANKNIFTY24SEPFUT")
	if err != nil {
		t.Fatalf("ByTradingSymbol() error: %v", err)
	}
	if c.Name != "BANKNIFTY SEP FUT" || c.LotSize != 15 || c.Exchange != "NFO" {
		t.Errorf("unexpected contract: %+v", c)
	}
}
