package source

import (
	"strings"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Iron-Ham/workertiers/internal/attendance"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=test dbname=test sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("gorm.Open failed: %v", err)
	}
	return db
}

func TestPostgresSource_Queries(t *testing.T) {
	db := dryRunDB(t)
	src := NewPostgresSource(db, time.Second)

	rangeSQL := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var records []attendance.Record
		return src.rangeQuery(tx, testRange).Find(&records)
	})
	for _, want := range []string{
		`FROM "attendance"`,
		"to_char(date, 'YYYY-MM-DD') AS date",
		"to_char(clock_in_time, 'YYYY-MM-DD HH24:MI:SS') AS clock_in_time",
		"date BETWEEN '2025-01-01' AND '2025-01-31'",
		"ORDER BY date, id",
	} {
		if !strings.Contains(rangeSQL, want) {
			t.Errorf("range query %q does not contain %q", rangeSQL, want)
		}
	}

	recentSQL := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var records []attendance.Record
		return src.recentQuery(tx, 100).Find(&records)
	})
	if !strings.Contains(recentSQL, "ORDER BY date DESC, id") || !strings.Contains(recentSQL, "LIMIT 100") {
		t.Errorf("recent query = %q", recentSQL)
	}

	usersSQL := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var users []attendance.User
		return src.usersQuery(tx).Find(&users)
	})
	if !strings.Contains(usersSQL, `FROM "users"`) {
		t.Errorf("users query = %q", usersSQL)
	}
}

func TestWithTimeZone(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"keyword form", "host=db user=app", "host=db user=app TimeZone=Asia/Jakarta"},
		{"keyword form with zone", "host=db TimeZone=UTC", "host=db TimeZone=UTC"},
		{"url form", "postgres://app@db:5432/hr?sslmode=disable", "postgres://app@db:5432/hr?sslmode=disable&timezone=Asia%2FJakarta"},
		{"url form with zone", "postgres://db/hr?timezone=UTC", "postgres://db/hr?timezone=UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withTimeZone(tt.dsn, jakarta); got != tt.want {
				t.Errorf("withTimeZone() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := withTimeZone("host=db", nil); got != "host=db" {
		t.Errorf("nil location should leave dsn unchanged, got %q", got)
	}
}
