package sqlite

import "testing"

func TestUpsertClause(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    string
	}{
		{"no columns", nil, "ON CONFLICT(key) DO NOTHING"},
		{"one column", []string{"value"}, "ON CONFLICT(key) DO UPDATE SET value=excluded.value"},
		{"several columns", []string{"value", "updated_at"}, "ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := upsertClause("key", tt.columns...); got != tt.want {
				t.Errorf("upsertClause() = %q, want %q", got, tt.want)
			}
		})
	}
}
