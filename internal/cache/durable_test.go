package cache

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"summarybot-ng/internal/domain"
)

func TestStoreDurableGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	body := []byte(`{"id":"sum1","channelId":"chan1","guildId":"guild1"}`)
	mock.ExpectQuery("SELECT body FROM summary_cache").
		WithArgs("fp1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(body))

	d := NewStoreDurable(db)
	sm, found, err := d.Get(context.Background(), domain.Fingerprint("fp1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || sm.ID != "sum1" {
		t.Fatalf("expected to find summary sum1, got %+v (found=%v)", sm, found)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreDurableGetMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT body FROM summary_cache").
		WithArgs("fp1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}))

	d := NewStoreDurable(db)
	_, found, err := d.Get(context.Background(), domain.Fingerprint("fp1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected a cache miss")
	}
}

func TestStoreDurablePut(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO summary_cache").
		WithArgs("fp1", "chan1", "guild1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d := NewStoreDurable(db)
	err = d.Put(context.Background(), domain.Fingerprint("fp1"), &domain.Summary{
		ID: "sum1", ChannelID: "chan1", GuildID: "guild1",
	}, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestStoreDurableInvalidateChannelLeavesSummariesTable asserts that
// invalidating the durable cache only ever issues statements against
// summary_cache, never summaries — the cache tier must not be able to
// delete source-of-truth rows Store owns.
func TestStoreDurableInvalidateChannelLeavesSummariesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM summary_cache WHERE channel_id = \\$1").
		WithArgs("chan1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	d := NewStoreDurable(db)
	if err := d.InvalidateChannel(context.Background(), "chan1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStoreDurableInvalidateGuild(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM summary_cache WHERE guild_id = \\$1").
		WithArgs("guild1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	d := NewStoreDurable(db)
	if err := d.InvalidateGuild(context.Background(), "guild1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
