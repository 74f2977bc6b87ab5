package table

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newGamelog(t *testing.T) *Table {
	t.Helper()

	tbl, err := New(
		[]string{"player_name", "player_team", "wl"},
		[]string{"Damian Lillard", "POR", "W"},
		[]string{"CJ McCollum", "POR", "L"},
		[]string{"Jusuf Nurkic", "POR", "W"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tbl
}

func TestNew_RangeIndex(t *testing.T) {
	t.Parallel()

	tbl := newGamelog(t)

	if tbl.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", tbl.Len())
	}
	index := tbl.Index()
	for i, want := range []string{"0", "1", "2"} {
		if index[i] != want {
			t.Errorf("Index[%d]: got %q, want %q", i, index[i], want)
		}
	}
}

func TestNew_RaggedRow(t *testing.T) {
	t.Parallel()

	_, err := New([]string{"a", "b"}, []string{"1", "2"}, []string{"3"})
	if !errors.Is(err, ErrRaggedRow) {
		t.Fatalf("expected ErrRaggedRow, got %v", err)
	}
}

func TestNewIndexed_LengthMismatch(t *testing.T) {
	t.Parallel()

	_, err := NewIndexed([]string{"a"}, []string{"x", "y"}, []string{"1"})
	if !errors.Is(err, ErrIndexLength) {
		t.Fatalf("expected ErrIndexLength, got %v", err)
	}
}

func TestNew_CopiesInput(t *testing.T) {
	t.Parallel()

	row := []string{"1", "2"}
	tbl, err := New([]string{"a", "b"}, row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row[0] = "changed"
	if got := tbl.Row(0)[0]; got != "1" {
		t.Errorf("Row(0)[0]: got %q, want %q", got, "1")
	}
}

func TestHead(t *testing.T) {
	t.Parallel()

	tbl := newGamelog(t)

	tests := []struct {
		n    int
		want int
	}{
		{n: 0, want: 0},
		{n: 2, want: 2},
		{n: 10, want: 3},
		{n: -1, want: 0},
	}

	for _, tt := range tests {
		if got := tbl.Head(tt.n).Len(); got != tt.want {
			t.Errorf("Head(%d).Len(): got %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	tbl := newGamelog(t)

	sel, err := tbl.Select("wl", "player_name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cols := sel.Columns()
	if len(cols) != 2 || cols[0] != "wl" || cols[1] != "player_name" {
		t.Errorf("Columns: got %v, want [wl player_name]", cols)
	}
	row := sel.Row(1)
	if row[0] != "L" || row[1] != "CJ McCollum" {
		t.Errorf("Row(1): got %v, want [L CJ McCollum]", row)
	}

	_, err = tbl.Select("missing")
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestCSV_IncludesHeaderAndIndex(t *testing.T) {
	t.Parallel()

	tbl, err := New([]string{"name", "note"},
		[]string{"a", "plain"},
		[]string{"b", "has, comma"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := tbl.CSV()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := ",name,note\n0,a,plain\n1,b,\"has, comma\"\n"
	if string(data) != want {
		t.Errorf("CSV: got %q, want %q", data, want)
	}
}

func TestCSV_QuotesLeadingSpace(t *testing.T) {
	t.Parallel()

	tbl, err := New([]string{"player"}, []string{" Lillard"}, []string{"Curry "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := tbl.CSV()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := ",player\n0,\" Lillard\"\n1,Curry \n"
	if string(data) != want {
		t.Errorf("CSV: got %q, want %q", data, want)
	}
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	tbl, err := ReadCSV(strings.NewReader("a,b\n1,2\n3,4\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tbl.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", tbl.Len())
	}
	if got := tbl.Row(1)[1]; got != "4" {
		t.Errorf("Row(1)[1]: got %q, want %q", got, "4")
	}
}

func TestReadCSV_Errors(t *testing.T) {
	t.Parallel()

	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input, got nil")
	}

	_, err := ReadCSV(strings.NewReader("a,b\n1,2,3\n"))
	if !errors.Is(err, ErrRaggedRow) {
		t.Errorf("expected ErrRaggedRow, got %v", err)
	}
}

func TestReadCSVFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gamelog.csv")
	if err := os.WriteFile(path, []byte("team,wl\nPOR,W\n"), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	tbl, err := ReadCSVFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tbl.Len() != 1 {
		t.Errorf("Len: got %d, want 1", tbl.Len())
	}

	if _, err := ReadCSVFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}
