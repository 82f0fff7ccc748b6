package mirror

import (
	"fmt"
	"log"
	"sync"

	"billing-ledger-backend/ledger"
	"billing-ledger-backend/utils"

	"github.com/xuri/excelize/v2"
)

// Workbook is the XLSX implementation of the billing mirror: the tabular
// ledger staff also hand-edit. Layout, left to right:
//
//	row 1: period header (YYYY-MM) on every fourth column starting at B
//	row 2: column labels Sales / Tax / Payment / Balance per period group
//	col A: company names, from row 3 down
//
// The Payment column is maintained by staff (or SetPayment); the Balance
// cell is recomputed on every write as carried-over + sales + tax, where
// carried-over is the previous period's balance minus this period's
// payment.
type Workbook struct {
	path  string
	sheet string

	// When false, an overpayment clamps the carry-forward to zero instead
	// of rolling a credit into the next period.
	allowNegativeCarry bool

	// Per-key critical sections: one in-flight mutation per
	// (company, period); different keys only contend on fileMu for the
	// load/save itself.
	keyMu sync.Mutex
	locks map[ledger.PeriodKey]*sync.Mutex

	fileMu sync.Mutex
}

const (
	headerRow       = 1
	labelRow        = 2
	firstCompanyRow = 3
	groupWidth      = 4 // Sales, Tax, Payment, Balance
)

// Open binds a workbook file. The file must already exist; Bootstrap
// creates a fresh one.
func Open(path, sheet string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open mirror workbook: %w", err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("mirror sheet %q not found in %s", sheet, path)
	}
	return &Workbook{path: path, sheet: sheet, allowNegativeCarry: true, locks: make(map[ledger.PeriodKey]*sync.Mutex)}, nil
}

// Bootstrap creates a workbook with the billing-sheet layout for the given
// companies and periods (YYYY-MM, chronological).
func Bootstrap(path, sheet string, companies, periods []string) (*Workbook, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create mirror sheet: %w", err)
	}
	f.SetActiveSheet(idx)

	f.SetCellValue(sheet, "A2", "Company")
	labels := []string{"Sales", "Tax", "Payment", "Balance"}
	for p, period := range periods {
		base := 2 + p*groupWidth // column B onward
		head, _ := excelize.CoordinatesToCellName(base, headerRow)
		f.SetCellValue(sheet, head, period)
		for l, label := range labels {
			cell, _ := excelize.CoordinatesToCellName(base+l, labelRow)
			f.SetCellValue(sheet, cell, label)
		}
	}
	for c, company := range companies {
		cell, _ := excelize.CoordinatesToCellName(1, firstCompanyRow+c)
		f.SetCellValue(sheet, cell, company)
	}

	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save mirror workbook: %w", err)
	}
	return &Workbook{path: path, sheet: sheet, allowNegativeCarry: true, locks: make(map[ledger.PeriodKey]*sync.Mutex)}, nil
}

// SetAllowNegativeCarry toggles whether an overpayment may roll a negative
// balance (credit) into the next period. Defaults to true.
func (w *Workbook) SetAllowNegativeCarry(v bool) {
	w.allowNegativeCarry = v
}

func (w *Workbook) lockKey(key ledger.PeriodKey) func() {
	w.keyMu.Lock()
	m, ok := w.locks[key]
	if !ok {
		m = &sync.Mutex{}
		w.locks[key] = m
	}
	w.keyMu.Unlock()
	m.Lock()
	return m.Unlock
}

// Read returns the period state for one key.
func (w *Workbook) Read(key ledger.PeriodKey) (ledger.PeriodState, error) {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return ledger.PeriodState{}, &ledger.MirrorUnavailableError{Err: fmt.Errorf("open mirror workbook: %w", err)}
	}
	defer f.Close()

	return w.readState(f, key)
}

// ApplyDelta adds to the Sales and Tax cells of one key under its critical
// section and recomputes the Balance cell.
func (w *Workbook) ApplyDelta(key ledger.PeriodKey, deltaSales, deltaTax int64) (ledger.PeriodState, error) {
	unlock := w.lockKey(key)
	defer unlock()

	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return ledger.PeriodState{}, &ledger.MirrorUnavailableError{Err: fmt.Errorf("open mirror workbook: %w", err)}
	}
	defer f.Close()

	row, col, err := w.locate(f, key)
	if err != nil {
		return ledger.PeriodState{}, err
	}

	sales := w.cellAmount(f, row, col) + deltaSales
	tax := w.cellAmount(f, row, col+1) + deltaTax
	w.setAmount(f, row, col, sales)
	w.setAmount(f, row, col+1, tax)

	state, err := w.recompute(f, key, row, col)
	if err != nil {
		return ledger.PeriodState{}, err
	}
	if err := f.Save(); err != nil {
		return ledger.PeriodState{}, &ledger.MirrorUnavailableError{Err: fmt.Errorf("save mirror workbook: %w", err)}
	}
	return state, nil
}

// SetPayment overwrites or accumulates the Payment cell and returns the
// before/after pair for the caller's audit message.
func (w *Workbook) SetPayment(key ledger.PeriodKey, amount int64, addMode bool) (previous, updated int64, err error) {
	unlock := w.lockKey(key)
	defer unlock()

	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return 0, 0, &ledger.MirrorUnavailableError{Err: fmt.Errorf("open mirror workbook: %w", err)}
	}
	defer f.Close()

	row, col, err := w.locate(f, key)
	if err != nil {
		return 0, 0, err
	}

	previous = w.cellAmount(f, row, col+2)
	if addMode {
		updated = previous + amount
	} else {
		updated = amount
	}
	w.setAmount(f, row, col+2, updated)

	if _, err := w.recompute(f, key, row, col); err != nil {
		return 0, 0, err
	}
	if err := f.Save(); err != nil {
		return 0, 0, &ledger.MirrorUnavailableError{Err: fmt.Errorf("save mirror workbook: %w", err)}
	}
	return previous, updated, nil
}

// locate resolves a key to (company row, Sales column). Company matching
// is normalized substring matching, the same rule staff rely on when the
// extracted name and the sheet name differ in legal form.
func (w *Workbook) locate(f *excelize.File, key ledger.PeriodKey) (row, col int, err error) {
	rows, err := f.GetRows(w.sheet)
	if err != nil {
		return 0, 0, fmt.Errorf("read mirror sheet: %w", err)
	}
	if len(rows) == 0 {
		return 0, 0, ledger.ErrPeriodNotFound
	}

	col = w.periodColumn(rows, key.YearMonth)
	if col == 0 {
		return 0, 0, fmt.Errorf("%w: %s", ledger.ErrPeriodNotFound, key.YearMonth)
	}

	for i := firstCompanyRow - 1; i < len(rows); i++ {
		if len(rows[i]) == 0 {
			continue
		}
		if utils.CompanyNamesMatch(rows[i][0], key.Company) {
			return i + 1, col, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", ledger.ErrCompanyNotFound, key.Company)
}

func (w *Workbook) periodColumn(rows [][]string, yearMonth string) int {
	if len(rows) == 0 {
		return 0
	}
	for i, v := range rows[headerRow-1] {
		if v != "" && v == yearMonth {
			return i + 1
		}
	}
	return 0
}

// readState assembles the PeriodState for a key, pulling the previous
// period's balance for the carry-forward.
func (w *Workbook) readState(f *excelize.File, key ledger.PeriodKey) (ledger.PeriodState, error) {
	row, col, err := w.locate(f, key)
	if err != nil {
		return ledger.PeriodState{}, err
	}
	return w.stateAt(f, key, row, col), nil
}

func (w *Workbook) stateAt(f *excelize.File, key ledger.PeriodKey, row, col int) ledger.PeriodState {
	sales := w.cellAmount(f, row, col)
	tax := w.cellAmount(f, row, col+1)
	payment := w.cellAmount(f, row, col+2)

	var previous int64
	if prevCol := w.findPeriodColumn(f, utils.PreviousYearMonth(key.YearMonth)); prevCol > 0 {
		previous = w.cellAmount(f, row, prevCol+3) // previous period's Balance
	}

	carried, clamped := ledger.CarryForward(previous, payment, w.allowNegativeCarry)
	if clamped {
		log.Printf("carry-forward clamped to zero for %s (payment %d exceeds previous %d)",
			key, payment, previous)
	}
	return ledger.PeriodState{
		PreviousAmount:  previous,
		PaymentReceived: payment,
		CarriedOver:     carried,
		SalesAmount:     sales,
		TaxAmount:       tax,
		CurrentAmount:   ledger.CurrentBalance(carried, sales, tax),
	}
}

// recompute rewrites the Balance cell from the current cells and returns
// the resulting state.
func (w *Workbook) recompute(f *excelize.File, key ledger.PeriodKey, row, col int) (ledger.PeriodState, error) {
	state := w.stateAt(f, key, row, col)
	w.setAmount(f, row, col+3, state.CurrentAmount)
	return state, nil
}

func (w *Workbook) findPeriodColumn(f *excelize.File, yearMonth string) int {
	if yearMonth == "" {
		return 0
	}
	rows, err := f.GetRows(w.sheet)
	if err != nil {
		return 0
	}
	return w.periodColumn(rows, yearMonth)
}

func (w *Workbook) cellAmount(f *excelize.File, row, col int) int64 {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return 0
	}
	v, err := f.GetCellValue(w.sheet, name)
	if err != nil {
		return 0
	}
	return utils.ParseAmount(v)
}

func (w *Workbook) setAmount(f *excelize.File, row, col int, v int64) {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return
	}
	// Thousands separators, matching how staff format cells by hand.
	f.SetCellValue(w.sheet, name, utils.FormatAmount(v))
}
