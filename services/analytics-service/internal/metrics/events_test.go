package metrics

import (
	"testing"
	"time"
)

func TestDayOfParsesRFC3339(t *testing.T) {
	day, ok := dayOf("2026-08-23T14:05:00+02:00")
	if !ok {
		t.Fatal("expected valid timestamp")
	}
	if day.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", day.Location())
	}
	if day.Hour() != 12 {
		t.Fatalf("expected hour 12 UTC, got %d", day.Hour())
	}
}

func TestDayOfRejectsGarbage(t *testing.T) {
	if _, ok := dayOf("yesterday"); ok {
		t.Fatal("expected invalid timestamp")
	}
	if _, ok := dayOf(""); ok {
		t.Fatal("expected empty timestamp to be invalid")
	}
}
