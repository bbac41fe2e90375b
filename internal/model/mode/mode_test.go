package mode

import "testing"

func TestParseAcceptsAliases(t *testing.T) {
	cases := map[string]Mode{
		"analytical": Analytical,
		"regular":    Analytical,
		" Playful ":  Playful,
		"FUN":        Playful,
	}
	for raw, want := range cases {
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) err: %v", raw, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	if _, err := Parse("sarcastic"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestSeedCoversEveryModeWithDistinctTemperature(t *testing.T) {
	store := NewMemoryStore(Seed())

	analytical, ok := store.Find(Analytical)
	if !ok {
		t.Fatal("analytical persona missing")
	}
	playful, ok := store.Find(Playful)
	if !ok {
		t.Fatal("playful persona missing")
	}

	if analytical.Temperature == playful.Temperature {
		t.Fatalf("expected distinct temperatures, both %f", analytical.Temperature)
	}
	if playful.Temperature <= analytical.Temperature {
		t.Fatalf("playful temperature %f should exceed analytical %f", playful.Temperature, analytical.Temperature)
	}
	if analytical.SystemPrompt == playful.SystemPrompt {
		t.Fatal("expected distinct system prompts")
	}
	if len(store.List()) != 2 {
		t.Fatalf("expected exactly two personas, got %d", len(store.List()))
	}
}
