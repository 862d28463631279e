package onvista

import (
	"errors"
	"strings"
	"testing"
)

func TestChartRows(t *testing.T) {
	t.Parallel()

	payload := func(trailingNewline bool) string {
		lines := []string{
			"getChart42month({data:[",
			"[1633305600,110.5,115.25,108.75,112,1500000],",
			"[86400,112,118,111,117.5,1600000]",
			"],",
			`"displayUnit":"month",`,
			`"instrumentType":"Stock",`,
			`"quality":"realtime",`,
			`"exchange":"GER",`,
			`"id":42}`,
		}
		if trailingNewline {
			return strings.Join(lines, "\n") + "\n)"
		}
		return strings.Join(lines, "\n") + ")"
	}

	for _, tt := range []struct {
		name string
		raw  string
	}{
		{"trailing newline before close", payload(true)},
		{"close on the last line", payload(false)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := chartRows(tt.raw)
			if err != nil {
				t.Fatalf("chartRows: %v", err)
			}
			if len(rows) != 2 {
				t.Fatalf("got %d rows, want 2", len(rows))
			}
			if rows[0][0] != 1633305600 {
				t.Errorf("first timestamp column = %v, want absolute epoch 1633305600", rows[0][0])
			}
			if rows[1][0] != 86400 {
				t.Errorf("second timestamp column = %v, want delta 86400", rows[1][0])
			}
			if rows[0][5] != 1500000 {
				t.Errorf("volume column = %v, want 1500000", rows[0][5])
			}
		})
	}
}

func TestChartRowsNoEnvelope(t *testing.T) {
	t.Parallel()

	_, err := chartRows("chart service unavailable")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("got %v, want a ParseError", err)
	}
	if !strings.Contains(parseErr.Error(), "callback envelope") {
		t.Errorf("error = %q, want it to name the missing envelope", parseErr.Error())
	}
}

func TestChartRowsGarbage(t *testing.T) {
	t.Parallel()

	_, err := chartRows("getChart42month(notjson)")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("got %v, want a ParseError", err)
	}
}

func TestChartScriptType(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		script string
		want   string
	}{
		{"type: 'Stock',", "Stock"},
		{"window.chart = { type: 'Fund', id: 3 }", "Fund"},
		{"  var cfg = {\n    type: 'Index',\n  }", "Index"},
	} {
		got, err := chartScriptType(tt.script)
		if err != nil {
			t.Fatalf("chartScriptType(%q): %v", tt.script, err)
		}
		if got != tt.want {
			t.Errorf("chartScriptType(%q) = %q, want %q", tt.script, got, tt.want)
		}
	}
}

func TestChartScriptTypeMissing(t *testing.T) {
	t.Parallel()

	_, err := chartScriptType("var chart = {}")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("got %v, want a ParseError", err)
	}
}

func TestMarketCodes(t *testing.T) {
	t.Parallel()

	codes, err := marketCodes()
	if err != nil {
		t.Fatalf("marketCodes: %v", err)
	}
	if got := codes["Xetra"]; got != "GER" {
		t.Errorf(`codes["Xetra"] = %q, want "GER"`, got)
	}
	if got := codes["Tradegate"]; got != "GAT" {
		t.Errorf(`codes["Tradegate"] = %q, want "GAT"`, got)
	}
	if got := codes["Lang & Schwarz"]; got != "LUS" {
		t.Errorf(`codes["Lang & Schwarz"] = %q, want "LUS"`, got)
	}
	if _, ok := codes["Außerbörslich"]; ok {
		t.Error("off-exchange trading must not have a code, it takes the default exchange")
	}
}
