package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"voiced/internal/session"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(started time.Time, outcome session.Outcome) session.Record {
	return session.Record{
		ID:           uuid.New().String(),
		StartedAt:    started,
		Active:       90 * time.Second,
		ManualPause:  5 * time.Second,
		TimeoutPause: 2 * time.Second,
		AutoPause:    12 * time.Second,
		Extensions:   1,
		Outcome:      outcome,
		Chars:        240,
		AltChord:     true,
	}
}

func TestRecordAndList(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	first := sampleRecord(base, session.OutcomePasted)
	second := sampleRecord(base.Add(time.Hour), session.OutcomeNoSpeech)
	if err := s.Record(first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(second); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d records, want 2", len(got))
	}
	if got[0].ID != second.ID {
		t.Error("List should return newest first")
	}
	rec := got[1]
	if rec.Active != first.Active || rec.AutoPause != first.AutoPause {
		t.Errorf("durations round-trip failed: %+v", rec)
	}
	if rec.Outcome != session.OutcomePasted || !rec.AltChord || rec.Chars != 240 {
		t.Errorf("fields round-trip failed: %+v", rec)
	}
	if !rec.StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", rec.StartedAt, base)
	}
}

func TestListLimit(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()
	for i := 0; i < 5; i++ {
		if err := s.Record(sampleRecord(base.Add(time.Duration(i)*time.Minute), session.OutcomePasted)); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.List(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("List(3) returned %d records", len(got))
	}
}

func TestSummarize(t *testing.T) {
	s := openTestStore(t)

	sum, err := s.Summarize()
	if err != nil {
		t.Fatalf("Summarize empty: %v", err)
	}
	if sum.Sessions != 0 || sum.TotalActive != 0 {
		t.Errorf("empty summary = %+v", sum)
	}

	base := time.Now()
	s.Record(sampleRecord(base, session.OutcomePasted))
	s.Record(sampleRecord(base.Add(time.Minute), session.OutcomePasted))
	s.Record(sampleRecord(base.Add(2*time.Minute), session.OutcomeAborted))

	sum, err = s.Summarize()
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Sessions != 3 || sum.Pasted != 2 {
		t.Errorf("summary counts = %+v", sum)
	}
	if sum.TotalActive != 3*90*time.Second {
		t.Errorf("TotalActive = %v", sum.TotalActive)
	}
	if sum.TotalChars != 3*240 {
		t.Errorf("TotalChars = %d", sum.TotalChars)
	}
}
