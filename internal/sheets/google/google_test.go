package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tally/internal/sheets"

	goption "google.golang.org/api/option"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{
		SpreadsheetID:   "test-id",
		CredentialsFile: t.TempDir() + "/missing.json",
	})
	if err == nil || !strings.Contains(err.Error(), "read service account file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"Tally", "2025 Tally"},
		{"  Tally  ", "2025 Tally"},
		{"2024 Tally", "2024 Tally"},
		{"", ""},
		{"12345", "2025 12345"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, 2025); got != tt.want {
			t.Errorf("yearPrefixedName(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestClient_AppendRow(t *testing.T) {
	var (
		gotPath  string
		gotQuery string
		gotBody  struct {
			Values [][]any `json:"values"`
		}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"spreadsheetId":"sheet-1","updates":{"updatedRange":"'2025 Tally'!A7:F7","updatedRows":1}}`)
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-1"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ref, err := c.AppendRow(context.Background(), sheets.Row{
		Timestamp: time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC),
		Day:       "2025-03-14",
		Tracker:   "moods",
		Category:  "Happy",
		Count:     2,
		DayTotal:  3,
	})
	if err != nil {
		t.Fatalf("AppendRow() error = %v", err)
	}
	if ref != "'2025 Tally'!A7:F7" {
		t.Errorf("ref = %q", ref)
	}
	if !strings.HasSuffix(gotPath, ":append") || !strings.Contains(gotPath, "sheet-1") {
		t.Errorf("unexpected path %q", gotPath)
	}
	if !strings.Contains(gotQuery, "valueInputOption=USER_ENTERED") || !strings.Contains(gotQuery, "insertDataOption=INSERT_ROWS") {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if len(gotBody.Values) != 1 || len(gotBody.Values[0]) != 6 {
		t.Fatalf("unexpected body %+v", gotBody)
	}
	if gotBody.Values[0][0] != "2025-03-14T08:00:00Z" || gotBody.Values[0][3] != "Happy" {
		t.Errorf("unexpected row %v", gotBody.Values[0])
	}
}

func TestClient_AppendRow_Validation(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetBase: "Tally"}

	if _, err := c.AppendRow(context.Background(), sheets.Row{}); err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("expected validation error, got %v", err)
	}

	valid := sheets.Row{Timestamp: time.Now(), Day: "2025-03-14", Tracker: "moods", Count: 1, DayTotal: 1}
	if _, err := c.AppendRow(context.Background(), valid); err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("expected uninitialized service error, got %v", err)
	}
}
