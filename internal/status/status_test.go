package status

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRecordPriceAppendsHistoryAndMidPrice(t *testing.T) {
	s := New()

	s.RecordPrice(decimal.NewFromInt(50000), time.Now())
	s.RecordPrice(decimal.NewFromInt(50100), time.Now())

	snap := s.Snapshot()
	if !snap.MidPrice.Equal(decimal.NewFromInt(50100)) {
		t.Fatalf("expected mid price 50100, got %s", snap.MidPrice)
	}
	if len(snap.PriceHistory) != 2 {
		t.Fatalf("expected 2 price history points, got %d", len(snap.PriceHistory))
	}

	for i := 0; i < maxHistoryPoints+10; i++ {
		s.RecordPrice(decimal.NewFromInt(int64(i)), time.Now())
	}
	snap = s.Snapshot()
	if len(snap.PriceHistory) != maxHistoryPoints {
		t.Fatalf("expected history bounded to %d, got %d", maxHistoryPoints, len(snap.PriceHistory))
	}
}
