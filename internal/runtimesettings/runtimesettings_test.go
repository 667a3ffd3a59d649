package runtimesettings

import (
	"strings"
	"testing"
	"time"
)

const sample = `title:
 A regional ROMS test case

time_stepping: NTIMES   dt[s]  NDTFAST  NINFO
          1440       360.0000        60         1

grid_file:
 /staged/grid.nc

start_date:
 2012-01-01 00:00:00

tiling: NtileI  NtileJ
          4         2
`

func TestParseRoundTrip(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := f.String(); got != sample {
		t.Fatalf("round trip mismatch:\ngot:\n%s\nwant:\n%s", got, sample)
	}
}

func TestSetPathPreservesOtherBlocks(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := f.SetPath("grid_file", "/staged/new_grid.nc"); err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	out := f.String()
	if !strings.Contains(out, "/staged/new_grid.nc") {
		t.Fatalf("new path not present:\n%s", out)
	}
	if !strings.Contains(out, "360.0000") {
		t.Fatalf("unrelated block's numeric precision was disturbed:\n%s", out)
	}
}

func TestSetTimeStepSecondsPreservesOtherTokens(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := f.SetTimeStepSeconds("time_stepping", "600.0000"); err != nil {
		t.Fatalf("SetTimeStepSeconds: %v", err)
	}
	b, ok := f.Get("time_stepping")
	if !ok {
		t.Fatalf("time_stepping block missing")
	}
	fields := strings.Fields(b.Lines[0])
	if fields[0] != "1440" || fields[1] != "600.0000" || fields[2] != "60" || fields[3] != "1" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestSetDateTimeFormat(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := time.Date(2012, 6, 15, 12, 0, 0, 0, time.UTC)
	if err := f.SetDateTime("start_date", want); err != nil {
		t.Fatalf("SetDateTime: %v", err)
	}
	b, _ := f.Get("start_date")
	if strings.TrimSpace(b.Lines[0]) != "2012-06-15 12:00:00" {
		t.Fatalf("Lines[0] = %q", b.Lines[0])
	}
}

func TestSetTilingWritesTwoIntegers(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := f.SetTiling("tiling", 8, 4); err != nil {
		t.Fatalf("SetTiling: %v", err)
	}
	b, _ := f.Get("tiling")
	fields := strings.Fields(b.Lines[0])
	if fields[0] != "8" || fields[1] != "4" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestUnrecognizedKeyPreservedVerbatim(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := f.SetPath("grid_file", "/staged/new_grid.nc"); err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	out := f.String()
	if !strings.Contains(out, "A regional ROMS test case") {
		t.Fatalf("unrecognized title block lost:\n%s", out)
	}
}

func TestSetLineOnMissingKeyFails(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := f.SetPath("no_such_key", "/x"); err == nil {
		t.Fatalf("expected error for missing block")
	}
}
