package main

import "testing"

func TestParseFlags(t *testing.T) {
	flags := parseFlags([]string{"--code=AV101", "--emergency", "positional", "--xp=40"})
	if flags["code"] != "AV101" {
		t.Fatalf("code = %q", flags["code"])
	}
	if _, ok := flags["emergency"]; !ok {
		t.Fatal("bare flag should be present")
	}
	if _, ok := flags["positional"]; ok {
		t.Fatal("positional args are not flags")
	}
	if intFlag(flags, "xp", 0) != 40 {
		t.Fatal("xp should parse")
	}
	if intFlag(flags, "missing", 7) != 7 {
		t.Fatal("default should apply")
	}
}

func TestFlightFromFlags(t *testing.T) {
	f := flightFromFlags(map[string]string{"code": "IB1", "at": "2026-05-01T10:00:00Z", "origin": "MAD"})
	if f.Code != "IB1" || f.Origin != "MAD" {
		t.Fatalf("flight = %+v", f)
	}
	if f.ScheduledAt.Hour() != 10 {
		t.Fatalf("scheduled = %v", f.ScheduledAt)
	}
}
