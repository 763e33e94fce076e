package infrastructure

import "testing"

func TestDialect_Rebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{"postgres", DialectPostgres, "SELECT * FROM clients WHERE segment = ? AND age > ?", "SELECT * FROM clients WHERE segment = $1 AND age > $2"},
		{"postgres quoted", DialectPostgres, "SELECT '?' FROM t WHERE id = ?", "SELECT '?' FROM t WHERE id = $1"},
		{"mysql", DialectMySQL, "INSERT INTO t VALUES (?, ?)", "INSERT INTO t VALUES (?, ?)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.Rebind(tt.query); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}
