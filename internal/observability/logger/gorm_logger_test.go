package logger

import "testing"

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM fact_sales_events":                       "SELECT",
		"WITH w AS (SELECT 1) SELECT * FROM w":                  "SELECT",
		"DELETE FROM fact_sales_events WHERE sale_date_key = 1": "DELETE",
		"INSERT INTO fact_sales_events (vin) VALUES ('A')":      "INSERT",
		"  ": "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q): expected %s, got %s", sql, want, got)
		}
	}
}

func TestTableFromSQL(t *testing.T) {
	cases := map[string]string{
		`SELECT * FROM "fact_sales_events" WHERE 1=1`:         "fact_sales_events",
		"INSERT INTO dim_date (date_key) VALUES (1)":          "dim_date",
		"UPDATE sales_fact_rebuild_requests SET status = 'x'": "sales_fact_rebuild_requests",
		"SELECT 1": "",
	}
	for sql, want := range cases {
		if got := tableFromSQL(sql); got != want {
			t.Fatalf("tableFromSQL(%q): expected %q, got %q", sql, want, got)
		}
	}
}
