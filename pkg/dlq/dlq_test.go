package dlq

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/xiebiao/saga-commerce/pkg/envelope"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	return NewStore(gdb), mock, func() { sqlDB.Close() }
}

func TestStore_Enqueue_InsertsRow(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `dead_letter_messages`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1)) // dlq_size采样

	env := &envelope.Envelope{EventID: "e1", EventType: "order.created", CorrelationID: "corr-1", Payload: []byte(`{}`)}
	if err := store.Enqueue(context.Background(), "order-service", "max retries exceeded", env); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_CountByService(t *testing.T) {
	store, mock, closeFn := newMockStore(t)
	defer closeFn()

	rows := sqlmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery("SELECT count").WillReturnRows(rows)

	n, err := store.CountByService(context.Background(), "order-service")
	if err != nil {
		t.Fatalf("CountByService() error = %v", err)
	}
	if n != 3 {
		t.Errorf("CountByService() = %d, want 3", n)
	}
}
