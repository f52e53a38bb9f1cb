package mysql

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pass@tcp(127.0.0.1:3306)/fsbot?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

// captureSQL 记录 DryRun 下最后生成的 SQL
func captureSQL(t *testing.T, db *gorm.DB) *string {
	t.Helper()
	var last string
	capture := func(tx *gorm.DB) { last = tx.Statement.SQL.String() }
	if err := db.Callback().Create().After("gorm:create").Register("test:capture_create", capture); err != nil {
		t.Fatalf("register create callback: %v", err)
	}
	if err := db.Callback().Query().After("gorm:query").Register("test:capture_query", capture); err != nil {
		t.Fatalf("register query callback: %v", err)
	}
	return &last
}

func TestNewOutcomeEncodesDetails(t *testing.T) {
	rec, err := NewOutcome("om_1", "oc_1", "DEAD_LETTER", 4, "NETWORK_ERROR", "connection refused",
		map[string]interface{}{"attempts": 4})
	if err != nil {
		t.Fatalf("new outcome: %v", err)
	}
	var details map[string]interface{}
	if err := json.Unmarshal(rec.ErrorDetails, &details); err != nil {
		t.Fatalf("details not valid json: %v", err)
	}
	if details["attempts"] != float64(4) {
		t.Fatalf("details = %v", details)
	}

	empty, err := NewOutcome("om_2", "oc_1", "SENT", 1, "", "", nil)
	if err != nil {
		t.Fatalf("new outcome: %v", err)
	}
	if empty.ErrorDetails != nil {
		t.Fatalf("details must stay nil when empty")
	}
}

func TestInsertBuildsInsertStatement(t *testing.T) {
	db := dryRunDB(t)
	sql := captureSQL(t, db)
	rec, _ := NewOutcome("om_1", "oc_1", "SENT", 1, "", "", nil)
	if err := NewOutcomeDAOWithDB(db).Insert(context.Background(), rec); err != nil {
		t.Fatalf("dry-run insert: %v", err)
	}

	if !strings.Contains(*sql, "INSERT INTO `message_outcomes`") {
		t.Fatalf("unexpected sql: %s", *sql)
	}
	if !strings.Contains(*sql, "`message_id`") || !strings.Contains(*sql, "`status`") {
		t.Fatalf("missing columns in sql: %s", *sql)
	}
}

func TestListByMessageIDOrdersByID(t *testing.T) {
	db := dryRunDB(t)
	sql := captureSQL(t, db)

	out, err := NewOutcomeDAOWithDB(db).ListByMessageID(context.Background(), "om_1")
	if err != nil {
		t.Fatalf("dry-run list: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("dry run must not return rows, got %d", len(out))
	}
	if !strings.Contains(*sql, "FROM `message_outcomes`") || !strings.Contains(*sql, "message_id = ?") ||
		!strings.Contains(*sql, "ORDER BY id ASC") {
		t.Fatalf("unexpected sql: %s", *sql)
	}
}
