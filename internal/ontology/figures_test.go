package ontology

import "testing"

func TestExtractFiguresNumberKeyword(t *testing.T) {
	tests := []struct {
		input    string
		metric   string
		expected int
	}{
		{"48,000 displaced after river burst its banks", MetricDisplaced, 48000},
		{"12 people injured in the collapse", MetricInjured, 12},
		{"1.2 million people affected across the region", MetricAffected, 1200000},
		{"300 homes destroyed by the cyclone", MetricHousesDamaged, 300},
		{"20 thousand evacuated ahead of landfall", MetricEvacuated, 20000},
	}

	for _, tt := range tests {
		figures := ExtractFigures(tt.input)
		if figures[tt.metric] != tt.expected {
			t.Errorf("ExtractFigures(%q)[%s] = %d, want %d", tt.input, tt.metric, figures[tt.metric], tt.expected)
		}
	}
}

func TestExtractFiguresDeathTollPatterns(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"Death toll rises to 59 after flooding", 59},
		{"The earthquake kills 4 in the north", 4},
		{"at least 52 dead following the landslide", 52},
		{"59 killed as storm batters coast", 59},
		{"death toll now stands at 101", 101},
	}

	for _, tt := range tests {
		figures := ExtractFigures(tt.input)
		if figures[MetricDeaths] != tt.expected {
			t.Errorf("ExtractFigures(%q)[deaths] = %d, want %d", tt.input, figures[MetricDeaths], tt.expected)
		}
	}
}

func TestExtractFiguresMaxNotSum(t *testing.T) {
	// Multiple pattern families matching the same metric in one item must
	// never be summed.
	text := "Death toll rises to 59. At least 52 dead were confirmed earlier; 59 killed in total."
	figures := ExtractFigures(text)
	if figures[MetricDeaths] != 59 {
		t.Errorf("deaths = %d, want 59 (max, never summed)", figures[MetricDeaths])
	}
}

func TestExtractFiguresPreliminaryAndRevised(t *testing.T) {
	// Two non-overlapping spans reporting the same metric: max across the item.
	text := "Officials initially reported 30 dead. The death toll rose to 45 by evening."
	figures := ExtractFigures(text)
	if figures[MetricDeaths] != 45 {
		t.Errorf("deaths = %d, want 45", figures[MetricDeaths])
	}
}

func TestExtractFiguresMultipleMetrics(t *testing.T) {
	text := "At least 12 dead and 48,000 displaced; 230 injured were taken to hospital."
	figures := ExtractFigures(text)

	want := map[string]int{
		MetricDeaths:    12,
		MetricDisplaced: 48000,
		MetricInjured:   230,
	}
	for metric, value := range want {
		if figures[metric] != value {
			t.Errorf("figures[%s] = %d, want %d", metric, figures[metric], value)
		}
	}
}

func TestExtractFiguresNone(t *testing.T) {
	if figures := ExtractFigures("Authorities are monitoring the situation."); figures != nil {
		t.Errorf("expected nil, got %v", figures)
	}
}
