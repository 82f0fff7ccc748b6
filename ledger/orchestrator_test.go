package ledger_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"billing-ledger-backend/ledger"
	"billing-ledger-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_CommitAndReplay(t *testing.T) {
	db := newTestDB(t)
	wb := newTestMirror(t, []string{"Acme"}, []string{"2025-02", "2025-03"})
	o := ledger.NewOrchestrator(wb)

	req := saveReq("req-1", "Acme", "2025-03",
		note("A1", 10000, 1000),
		note("A2", 5000, 500),
	)

	res, err := o.Save(db, req)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCommitted, res.Status)
	assert.False(t, res.MirrorPending)
	require.NotNil(t, res.NewState)
	assert.Equal(t, int64(15000), res.NewState.SalesAmount)
	assert.Equal(t, int64(1500), res.NewState.TaxAmount)
	assert.Empty(t, res.Discrepancies, "store and mirror must agree right after a clean save")

	// The identical request again is a replay, not a double write.
	res2, err := o.Save(db, req)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReplayed, res2.Status)
	require.NotNil(t, res2.NewState)
	assert.Equal(t, int64(15000), res2.NewState.SalesAmount)

	var count int64
	require.NoError(t, db.Model(&models.DeliveryNote{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	state, err := wb.Read(ledger.PeriodKey{Company: "Acme", YearMonth: "2025-03"})
	require.NoError(t, err)
	assert.Equal(t, int64(15000), state.SalesAmount, "replay must not touch the mirror again")
}

func TestSave_SlipConflict(t *testing.T) {
	db := newTestDB(t)
	wb := newTestMirror(t, []string{"Acme"}, []string{"2025-03"})
	o := ledger.NewOrchestrator(wb)

	_, err := o.Save(db, saveReq("req-1", "Acme", "2025-03", note("A1", 10000, 1000)))
	require.NoError(t, err)

	// Different request, same slip: nothing is written.
	res, err := o.Save(db, saveReq("req-2", "Acme", "2025-03", note("A1", 9999, 999)))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConflict, res.Status)
	require.Len(t, res.ExistingNotes, 1)
	assert.Equal(t, "A1", res.ExistingNotes[0].SlipNumber)
	assert.Equal(t, int64(10000), res.ExistingNotes[0].Subtotal)

	var count int64
	require.NoError(t, db.Model(&models.DeliveryNote{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSave_ForceOverwrite(t *testing.T) {
	db := newTestDB(t)
	wb := newTestMirror(t, []string{"Acme"}, []string{"2025-03"})
	o := ledger.NewOrchestrator(wb)

	_, err := o.Save(db, saveReq("req-1", "Acme", "2025-03", note("A1", 10000, 1000)))
	require.NoError(t, err)

	req := saveReq("req-2", "Acme", "2025-03", note("A1", 12000, 1200))
	req.ForceOverwrite = true
	res, err := o.Save(db, req)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCommitted, res.Status)

	// The mirror carries the replacement values, not the sum of both saves.
	require.NotNil(t, res.NewState)
	assert.Equal(t, int64(12000), res.NewState.SalesAmount)
	assert.Equal(t, int64(1200), res.NewState.TaxAmount)
	assert.Empty(t, res.Discrepancies)

	var notes []models.DeliveryNote
	require.NoError(t, db.Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, int64(12000), notes[0].Subtotal)
}

func TestSave_MirrorOutageAndResume(t *testing.T) {
	db := newTestDB(t)
	wb := newTestMirror(t, []string{"Acme"}, []string{"2025-03"})
	flaky := &flakyMirror{inner: wb, failuresLeft: 1}
	o := ledger.NewOrchestrator(flaky)

	req := saveReq("req-1", "Acme", "2025-03", note("A1", 10000, 1000))

	// First attempt: notes land, mirror does not.
	res, err := o.Save(db, req)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCommitted, res.Status)
	assert.True(t, res.MirrorPending)
	assert.Nil(t, res.NewState)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[len(res.Warnings)-1], "mirror unavailable")

	var count int64
	require.NoError(t, db.Model(&models.DeliveryNote{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "store write must survive the mirror fault")

	var receipt models.SaveReceipt
	require.NoError(t, db.Where("request_id = ?", "req-1").First(&receipt).Error)
	assert.Equal(t, models.ReceiptMirrorPending, receipt.Stage)

	// Retry with the same request_id: resumes the mirror stage only.
	res, err = o.Save(db, req)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCommitted, res.Status)
	assert.False(t, res.MirrorPending)
	require.NotNil(t, res.NewState)
	assert.Equal(t, int64(10000), res.NewState.SalesAmount)

	require.NoError(t, db.Model(&models.DeliveryNote{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "resume must not re-insert notes")

	// A third attempt is now an ordinary replay.
	res, err = o.Save(db, req)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReplayed, res.Status)
}

func TestSave_ConcurrentRetriesApplyDeltaOnce(t *testing.T) {
	db := newTestDB(t)
	wb := newTestMirror(t, []string{"Acme"}, []string{"2025-03"})
	gated := &gatedMirror{inner: wb, entered: make(chan struct{}, 2), gate: make(chan struct{})}
	o := ledger.NewOrchestrator(gated)

	// A prior attempt persisted the note and receipt but never reached the
	// mirror. Both retries below carry the same request_id.
	require.NoError(t, db.Create(&models.DeliveryNote{
		CompanyName: "Acme", SlipNumber: "A1", Date: "2025/03/05",
		YearMonth: "2025-03", Subtotal: 10000, Tax: 1000, Total: 11000,
	}).Error)
	require.NoError(t, db.Create(&models.SaveReceipt{
		RequestID: "req-1", Company: "Acme", YearMonth: "2025-03",
		Stage: models.ReceiptMirrorPending, DeltaSales: 10000, DeltaTax: 1000,
	}).Error)

	req := saveReq("req-1", "Acme", "2025-03", note("A1", 10000, 1000))

	results := make([]*ledger.SaveResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); results[0], errs[0] = o.Save(db, req) }()
	<-gated.entered // first retry is now inside the mirror write
	go func() { defer wg.Done(); results[1], errs[1] = o.Save(db, req) }()
	time.Sleep(20 * time.Millisecond) // let the second retry queue on the key lock
	close(gated.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), atomic.LoadInt32(&gated.calls), "delta must land on the mirror exactly once")

	state, err := wb.Read(ledger.PeriodKey{Company: "Acme", YearMonth: "2025-03"})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), state.SalesAmount)

	statuses := []ledger.SaveStatus{results[0].Status, results[1].Status}
	assert.Contains(t, statuses, ledger.StatusCommitted)
	assert.Contains(t, statuses, ledger.StatusReplayed)
}

func TestSave_ConcurrentIdenticalFreshRequests(t *testing.T) {
	db := newTestDB(t)
	wb := newTestMirror(t, []string{"Acme"}, []string{"2025-03"})
	o := ledger.NewOrchestrator(wb)

	req := saveReq("req-1", "Acme", "2025-03", note("A1", 10000, 1000))

	results := make([]*ledger.SaveResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) { defer wg.Done(); results[i], errs[i] = o.Save(db, req) }(i)
	}
	wg.Wait()

	// Whichever loses the race must see a replay, never a unique-index error.
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	statuses := []ledger.SaveStatus{results[0].Status, results[1].Status}
	assert.Contains(t, statuses, ledger.StatusCommitted)
	assert.Contains(t, statuses, ledger.StatusReplayed)

	var count int64
	require.NoError(t, db.Model(&models.DeliveryNote{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	state, err := wb.Read(ledger.PeriodKey{Company: "Acme", YearMonth: "2025-03"})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), state.SalesAmount)
}

func TestSave_ClosingDayPeriodWarning(t *testing.T) {
	db := newTestDB(t)
	wb := newTestMirror(t, []string{"Acme"}, []string{"2025-03", "2025-04"})
	o := ledger.NewOrchestrator(wb)
	require.NoError(t, db.Create(&models.Company{
		CompanyName: "Acme", ClosingDay: "20", Active: true,
	}).Error)

	// Delivered after the closing day, so it books into April, not March.
	late := note("A1", 10000, 1000)
	late.Date = "2025/03/25"
	res, err := o.Save(db, saveReq("req-1", "Acme", "2025-03", late))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCommitted, res.Status)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "2025-04")

	onTime := note("B2", 500, 50)
	onTime.Date = "2025/04/10"
	res, err = o.Save(db, saveReq("req-2", "Acme", "2025-04", onTime))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestSave_Validation(t *testing.T) {
	db := newTestDB(t)
	wb := newTestMirror(t, []string{"Acme"}, []string{"2025-03"})
	o := ledger.NewOrchestrator(wb)

	tests := []struct {
		name  string
		req   ledger.SaveRequest
		field string
	}{
		{"missing company", saveReq("r", "", "2025-03", note("A1", 1, 0)), "company"},
		{"bad period", saveReq("r", "Acme", "2025/03", note("A1", 1, 0)), "year_month"},
		{"missing request id", saveReq("", "Acme", "2025-03", note("A1", 1, 0)), "request_id"},
		{"empty batch", saveReq("r", "Acme", "2025-03"), "delivery_notes"},
		{"blank slip", saveReq("r", "Acme", "2025-03", note("", 1, 0)), "slip_number"},
		{"duplicate slip in batch", saveReq("r", "Acme", "2025-03", note("A1", 1, 0), note("A1", 2, 0)), "slip_number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Save(db, tt.req)
			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.SaveReceipt{}).Count(&count).Error)
	assert.Zero(t, count, "rejected requests must leave no receipt")
}

func TestSave_WarningsSurfaceButDoNotBlock(t *testing.T) {
	db := newTestDB(t)
	wb := newTestMirror(t, []string{"Acme"}, []string{"2025-03"})
	o := ledger.NewOrchestrator(wb)

	bad := note("A1", 10000, 900) // not 10% of subtotal
	res, err := o.Save(db, saveReq("req-1", "Acme", "2025-03", bad))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCommitted, res.Status)
	assert.NotEmpty(t, res.Warnings)

	// The suspect values are saved as given.
	var saved models.DeliveryNote
	require.NoError(t, db.Where("slip_number = ?", "A1").First(&saved).Error)
	assert.Equal(t, int64(900), saved.Tax)
}

func TestSave_UnknownMirrorCompanyIsPartialSuccess(t *testing.T) {
	db := newTestDB(t)
	wb := newTestMirror(t, []string{"Acme"}, []string{"2025-03"})
	o := ledger.NewOrchestrator(wb)

	// Company exists in the store request but has no mirror row yet.
	res, err := o.Save(db, saveReq("req-1", "Umbrella", "2025-03", note("U1", 7000, 700)))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCommitted, res.Status)
	assert.True(t, res.MirrorPending)

	var receipt models.SaveReceipt
	require.NoError(t, db.Where("request_id = ?", "req-1").First(&receipt).Error)
	assert.Equal(t, models.ReceiptMirrorPending, receipt.Stage)
	assert.Nil(t, receipt.CompletedAt)
}
