package contracts

import "testing"

func TestParseHorizon(t *testing.T) {
	tests := []struct {
		input   string
		want    Horizon
		wantErr bool
	}{
		{"H30", Horizon30, false},
		{"H2H", Horizon2H, false},
		{"HDAY", HorizonDay, false},
		{"HWEEK", HorizonWeek, false},
		{"H1", "", true},
		{"", "", true},
		{"h30", "", true}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseHorizon(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseHorizon(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseHorizon(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestHorizon_ScanTimeframe(t *testing.T) {
	if Horizon30.ScanTimeframe() != Timeframe1m {
		t.Error("Expected H30 to scan on 1m bars")
	}
	if Horizon2H.ScanTimeframe() != Timeframe1m {
		t.Error("Expected H2H to scan on 1m bars")
	}
	if HorizonDay.ScanTimeframe() != Timeframe5m {
		t.Error("Expected HDAY to scan on 5m bars")
	}
	if HorizonWeek.ScanTimeframe() != Timeframe5m {
		t.Error("Expected HWEEK to scan on 5m bars")
	}
}

func TestAllHorizons(t *testing.T) {
	horizons := AllHorizons()
	if len(horizons) != 4 {
		t.Fatalf("Expected 4 horizons, got %d", len(horizons))
	}
	for _, h := range horizons {
		if !h.Valid() {
			t.Errorf("Expected %q to be valid", h)
		}
	}
}
