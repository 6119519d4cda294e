package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"straddle-runner/internal/models"
)

func TestJournalAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir, "s1")
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	defer j.Close()

	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	samples := []models.SpotSample{
		{Timestamp: now, Spot: 19660.5},
		{Timestamp: now.Add(2 * time.Second), Spot: 19662},
	}
	for _, s := range samples {
		if err := j.AppendSpot(s); err != nil {
			t.Fatalf("appending spot: %v", err)
		}
	}

	if err := j.AppendTrigger(models.TriggerEvent{
		Timestamp: now, Level: 19700, Status: models.TriggerArmed, Direction: models.DirectionUp,
	}); err != nil {
		t.Fatalf("appending trigger: %v", err)
	}

	if err := j.AppendTrade(models.TradeRecord{
		Timestamp: now, Action: models.TradeEntry, Level: 19700, Spot: 19705,
		CESymbol: "NIFTY25SEP19750CE", PESymbol: "NIFTY25SEP19650PE",
		CEPrice: 120, PEPrice: 110, EntryTime: now,
	}); err != nil {
		t.Fatalf("appending trade: %v", err)
	}

	gotSpots, err := j.ReadSpots()
	if err != nil {
		t.Fatalf("reading spots: %v", err)
	}
	if len(gotSpots) != 2 {
		t.Fatalf("spot count = %d, want 2", len(gotSpots))
	}
	if gotSpots[0].Spot != 19660.5 || !gotSpots[0].Timestamp.Equal(now) {
		t.Fatalf("first sample = %+v", gotSpots[0])
	}

	gotTrigs, err := j.ReadTriggers()
	if err != nil {
		t.Fatalf("reading triggers: %v", err)
	}
	if len(gotTrigs) != 1 || gotTrigs[0].Level != 19700 || gotTrigs[0].Status != models.TriggerArmed {
		t.Fatalf("triggers = %+v", gotTrigs)
	}

	gotTrades, err := j.ReadTrades()
	if err != nil {
		t.Fatalf("reading trades: %v", err)
	}
	if len(gotTrades) != 1 || gotTrades[0].Action != models.TradeEntry {
		t.Fatalf("trades = %+v", gotTrades)
	}
	if gotTrades[0].CEPrice != 120 || gotTrades[0].PEPrice != 110 {
		t.Fatalf("trade premiums = (%.0f, %.0f)", gotTrades[0].CEPrice, gotTrades[0].PEPrice)
	}
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	j, err := New(dir, "s1")
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	if err := j.AppendSpot(models.SpotSample{Timestamp: time.Now().UTC(), Spot: 19660}); err != nil {
		t.Fatalf("appending spot: %v", err)
	}
	j.Close()

	j2, err := New(dir, "s1")
	if err != nil {
		t.Fatalf("reopening journal: %v", err)
	}
	defer j2.Close()

	if err := j2.AppendSpot(models.SpotSample{Timestamp: time.Now().UTC(), Spot: 19665}); err != nil {
		t.Fatalf("appending after reopen: %v", err)
	}

	spots, err := j2.ReadSpots()
	if err != nil {
		t.Fatalf("reading spots: %v", err)
	}
	if len(spots) != 2 {
		t.Fatalf("spot count after reopen = %d, want 2", len(spots))
	}
}

func TestJournalStreamsAreIsolatedPerStrategy(t *testing.T) {
	dir := t.TempDir()

	j1, err := New(dir, "s1")
	if err != nil {
		t.Fatalf("opening journal s1: %v", err)
	}
	defer j1.Close()
	j2, err := New(dir, "s2")
	if err != nil {
		t.Fatalf("opening journal s2: %v", err)
	}
	defer j2.Close()

	if err := j1.AppendSpot(models.SpotSample{Timestamp: time.Now().UTC(), Spot: 19660}); err != nil {
		t.Fatalf("appending spot: %v", err)
	}

	s2, err := j2.ReadSpots()
	if err != nil {
		t.Fatalf("reading s2 spots: %v", err)
	}
	if len(s2) != 0 {
		t.Fatal("s2 stream must not see s1 samples")
	}

	if _, err := os.Stat(filepath.Join(dir, "spot_s1.jsonl")); err != nil {
		t.Fatalf("expected spot_s1.jsonl: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "spot_s2.jsonl")); err != nil {
		t.Fatalf("expected spot_s2.jsonl: %v", err)
	}
}

func TestJournalClear(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir, "s1")
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	defer j.Close()

	if err := j.AppendSpot(models.SpotSample{Timestamp: time.Now().UTC(), Spot: 19660}); err != nil {
		t.Fatalf("appending spot: %v", err)
	}
	if err := j.AppendTrade(models.TradeRecord{Timestamp: time.Now().UTC(), Action: models.TradeEntry}); err != nil {
		t.Fatalf("appending trade: %v", err)
	}

	if err := j.Clear(); err != nil {
		t.Fatalf("clearing journal: %v", err)
	}

	spots, err := j.ReadSpots()
	if err != nil {
		t.Fatalf("reading spots: %v", err)
	}
	trades, err := j.ReadTrades()
	if err != nil {
		t.Fatalf("reading trades: %v", err)
	}
	if len(spots) != 0 || len(trades) != 0 {
		t.Fatal("streams must be empty after Clear")
	}

	// Appends after a clear land at the start of the file.
	if err := j.AppendSpot(models.SpotSample{Timestamp: time.Now().UTC(), Spot: 19670}); err != nil {
		t.Fatalf("appending after clear: %v", err)
	}
	spots, err = j.ReadSpots()
	if err != nil {
		t.Fatalf("reading spots: %v", err)
	}
	if len(spots) != 1 || spots[0].Spot != 19670 {
		t.Fatalf("spots after clear = %+v", spots)
	}
}

func TestReadMissingStreamIsEmpty(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir, "s1")
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	defer j.Close()

	// Streams exist but are empty on a fresh journal.
	trades, err := j.ReadTrades()
	if err != nil {
		t.Fatalf("reading trades: %v", err)
	}
	if len(trades) != 0 {
		t.Fatal("fresh journal must have no trades")
	}
}
