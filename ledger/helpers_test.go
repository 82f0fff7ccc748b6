package ledger_test

import (
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"billing-ledger-backend/ledger"
	"billing-ledger-backend/mirror"
	"billing-ledger-backend/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Company{},
		&models.DeliveryNote{},
		&models.DeliveryItem{},
		&models.SaveReceipt{},
	))
	return db
}

func newTestMirror(t *testing.T, companies, periods []string) *mirror.Workbook {
	t.Helper()
	wb, err := mirror.Bootstrap(filepath.Join(t.TempDir(), "mirror.xlsx"), "Billing", companies, periods)
	require.NoError(t, err)
	return wb
}

func note(slip string, subtotal, tax int64) ledger.NoteInput {
	return ledger.NoteInput{
		Date:       "2025/03/05",
		SlipNumber: slip,
		Subtotal:   subtotal,
		Tax:        tax,
		Total:      subtotal + tax,
	}
}

func saveReq(requestID, company, yearMonth string, notes ...ledger.NoteInput) ledger.SaveRequest {
	return ledger.SaveRequest{
		Company:       company,
		YearMonth:     yearMonth,
		RequestID:     requestID,
		SalesPerson:   "sato",
		DeliveryNotes: notes,
	}
}

// flakyMirror fails a configured number of ApplyDelta calls before
// delegating, simulating a transient sheet outage.
type flakyMirror struct {
	inner        ledger.Mirror
	failuresLeft int
}

func (m *flakyMirror) Read(key ledger.PeriodKey) (ledger.PeriodState, error) {
	return m.inner.Read(key)
}

func (m *flakyMirror) ApplyDelta(key ledger.PeriodKey, deltaSales, deltaTax int64) (ledger.PeriodState, error) {
	if m.failuresLeft > 0 {
		m.failuresLeft--
		return ledger.PeriodState{}, errors.New("sheet backend returned 503")
	}
	return m.inner.ApplyDelta(key, deltaSales, deltaTax)
}

func (m *flakyMirror) SetPayment(key ledger.PeriodKey, amount int64, addMode bool) (int64, int64, error) {
	return m.inner.SetPayment(key, amount, addMode)
}

// gatedMirror parks ApplyDelta callers on a gate channel and counts them,
// so a test can hold one save mid-mirror-write while another races it.
type gatedMirror struct {
	inner   ledger.Mirror
	entered chan struct{}
	gate    chan struct{}
	calls   int32
}

func (m *gatedMirror) Read(key ledger.PeriodKey) (ledger.PeriodState, error) {
	return m.inner.Read(key)
}

func (m *gatedMirror) ApplyDelta(key ledger.PeriodKey, deltaSales, deltaTax int64) (ledger.PeriodState, error) {
	atomic.AddInt32(&m.calls, 1)
	m.entered <- struct{}{}
	<-m.gate
	return m.inner.ApplyDelta(key, deltaSales, deltaTax)
}

func (m *gatedMirror) SetPayment(key ledger.PeriodKey, amount int64, addMode bool) (int64, int64, error) {
	return m.inner.SetPayment(key, amount, addMode)
}
