package analysis

import (
	"reflect"
	"testing"
)

func TestIsDuplicate(t *testing.T) {
	history := []string{
		"Disk usage above 90% on db-01",
		"Certificate expires next week",
		"DNS cache poisoning risk",
	}

	tests := []struct {
		name     string
		item     string
		lookback int
		want     bool
	}{
		{"exact match", "DNS cache poisoning risk", 10, true},
		{"case insensitive", "dns CACHE poisoning RISK", 10, true},
		{"item contains history entry", "There is a DNS cache poisoning risk on the resolver", 10, true},
		{"history entry contains item", "Certificate expires", 10, true},
		{"unrelated", "Backups have not run since Monday", 10, false},
		{"outside lookback window", "Disk usage above 90% on db-01", 1, false},
		{"inside lookback window", "DNS cache poisoning risk", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicate(tt.item, history, tt.lookback); got != tt.want {
				t.Errorf("isDuplicate(%q, lookback=%d) = %v, want %v", tt.item, tt.lookback, got, tt.want)
			}
		})
	}
}

func TestIsDuplicateEmptyHistory(t *testing.T) {
	if isDuplicate("anything", nil, 10) {
		t.Error("nothing is a duplicate of empty history")
	}
}

func TestDropDuplicates(t *testing.T) {
	history := []string{"Rotate the API keys", "Enable MFA for admins"}
	items := []string{
		"rotate the api keys",
		"Patch the kernel",
		"Enable MFA for admins right away",
	}

	got := dropDuplicates(items, history, 10)
	want := []string{"Patch the kernel"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dropDuplicates = %v, want %v", got, want)
	}
}

func TestDropDuplicatesEmptyInput(t *testing.T) {
	got := dropDuplicates(nil, []string{"history"}, 10)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}
