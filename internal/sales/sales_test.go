package sales

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/catalog"
	"go-pos-ledger/internal/config"
	"go-pos-ledger/internal/database/dbtest"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/metrics"
	"go-pos-ledger/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   *Service
	reg   *prometheus.Registry
	cola  models.Product
	chips models.Product
}

func newFixture(t *testing.T, colaStock int64) fixture {
	t.Helper()
	db := dbtest.New(t)
	stock := ledger.NewStockLedger(db)
	cat := catalog.New(db, stock, config.CatalogConfig{SearchDefaultLimit: 10, SearchMaxLimit: 50}, zap.NewNop())
	reg := prometheus.NewRegistry()
	m := metrics.New("pos-test", reg)

	cola := dbtest.CreateProduct(t, db, "Cola", colaStock,
		dbtest.UnitSpec{Name: "Piece", Barcode: "COLA-1", Price: "55", Factor: 1},
		dbtest.UnitSpec{Name: "Case", Barcode: "COLA-24", Price: "1200", Factor: 24})
	chips := dbtest.CreateProduct(t, db, "Chips", 5,
		dbtest.UnitSpec{Name: "Pack", Barcode: "CHIPS-1", Price: "20.50", Factor: 1})

	return fixture{
		db:    db,
		svc:   NewService(db, cat, stock, ledger.NewCreditLedger(db), m, zap.NewNop()),
		reg:   reg,
		cola:  cola,
		chips: chips,
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCommitCashCase(t *testing.T) {
	f := newFixture(t, 480)

	d, err := f.svc.Commit(context.Background(), CheckoutRequest{
		PaymentMethod: models.PaymentCash,
		AmountPaid:    dec("2500"),
		Lines:         []LineRequest{{Barcode: "COLA-24", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if !d.TotalAmount.Equal(dec("2400")) || !d.ChangeDue.Equal(dec("100")) || !d.AmountPaid.Equal(dec("2500")) {
		t.Fatalf("total %s paid %s change %s", d.TotalAmount, d.AmountPaid, d.ChangeDue)
	}
	if got := dbtest.Stock(t, f.db, f.cola.ID); !got.Equal(decimal.NewFromInt(432)) {
		t.Fatalf("stock = %s, want 432", got)
	}
	if len(d.Lines) != 1 || d.Lines[0].ProductName != "Cola" || d.Lines[0].UnitName != "Case" || !d.Lines[0].BaseUnits.Equal(decimal.NewFromInt(48)) {
		t.Fatalf("lines = %+v", d.Lines)
	}
	if n, err := testutil.GatherAndCount(f.reg, "pos_sales_committed_total"); err != nil || n != 1 {
		t.Fatalf("sales committed series = %d, %v", n, err)
	}
}

func TestCommitInsufficientStockLeavesNothing(t *testing.T) {
	f := newFixture(t, 20)

	_, err := f.svc.Commit(context.Background(), CheckoutRequest{
		PaymentMethod: models.PaymentCash,
		AmountPaid:    dec("5000"),
		Lines: []LineRequest{
			{Barcode: "CHIPS-1", Quantity: 2},
			{Barcode: "COLA-24", Quantity: 1},
		},
	})
	var stockErr *apperror.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("error = %v, want *InsufficientStockError", err)
	}
	if stockErr.ProductName != "Cola" || !stockErr.Shortfall().Equal(decimal.NewFromInt(4)) {
		t.Fatalf("stock error = %+v", stockErr)
	}

	if got := dbtest.Stock(t, f.db, f.cola.ID); !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("cola stock = %s, want 20", got)
	}
	if got := dbtest.Stock(t, f.db, f.chips.ID); !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("chips stock = %s, want 5", got)
	}
	for _, model := range []any{&models.Sale{}, &models.SaleLine{}, &models.StockMovement{}} {
		if n := dbtest.Count(t, f.db, model); n != 0 {
			t.Fatalf("%T rows = %d after rollback", model, n)
		}
	}
}

func TestCommitCreditWithoutCustomer(t *testing.T) {
	f := newFixture(t, 480)

	_, err := f.svc.Commit(context.Background(), CheckoutRequest{
		PaymentMethod: models.PaymentCredit,
		Lines:         []LineRequest{{Barcode: "COLA-1", Quantity: 1}},
	})
	if !errors.Is(err, apperror.ErrNoCustomerForCredit) {
		t.Fatalf("error = %v, want ErrNoCustomerForCredit", err)
	}
	if got := dbtest.Stock(t, f.db, f.cola.ID); !got.Equal(decimal.NewFromInt(480)) {
		t.Fatalf("stock = %s", got)
	}
}

func TestCommitCreditPostsToBalance(t *testing.T) {
	f := newFixture(t, 480)
	c := dbtest.CreateCustomer(t, f.db, "Aling Nena", "100")

	d, err := f.svc.Commit(context.Background(), CheckoutRequest{
		CustomerID:    &c.ID,
		PaymentMethod: models.PaymentCredit,
		AmountPaid:    dec("999"),
		Lines:         []LineRequest{{Barcode: "COLA-1", Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !d.AmountPaid.IsZero() || !d.ChangeDue.IsZero() || d.CustomerName != "Aling Nena" {
		t.Fatalf("detail = %+v", d)
	}
	if got := dbtest.Balance(t, f.db, c.ID); !got.Equal(dec("265")) {
		t.Fatalf("balance = %s, want 265", got)
	}

	var entry models.CreditEntry
	if err := f.db.Where("customer_id = ?", c.ID).First(&entry).Error; err != nil {
		t.Fatal(err)
	}
	if entry.SaleID == nil || *entry.SaleID != d.ID || entry.Kind != models.CreditCharge {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestCommitSameProductTwoUnits(t *testing.T) {
	f := newFixture(t, 480)

	d, err := f.svc.Commit(context.Background(), CheckoutRequest{
		PaymentMethod: models.PaymentGCash,
		AmountPaid:    dec("1365"),
		Lines: []LineRequest{
			{Barcode: "COLA-1", Quantity: 3},
			{UnitID: f.cola.Units[1].ID, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := dbtest.Stock(t, f.db, f.cola.ID); !got.Equal(decimal.NewFromInt(453)) {
		t.Fatalf("stock = %s, want 480-3-24", got)
	}

	var movements []models.StockMovement
	f.db.Where("product_id = ?", f.cola.ID).Find(&movements)
	if len(movements) != 1 || !movements[0].Quantity.Equal(decimal.NewFromInt(-27)) {
		t.Fatalf("movements = %+v, want a single -27", movements)
	}

	sum := decimal.Zero
	for _, l := range d.Lines {
		sum = sum.Add(l.Subtotal)
	}
	if !sum.Equal(d.TotalAmount) || !d.TotalAmount.Equal(dec("1365")) || !d.ChangeDue.IsZero() {
		t.Fatalf("sum %s total %s change %s", sum, d.TotalAmount, d.ChangeDue)
	}
}

func TestCommitRejections(t *testing.T) {
	missing := uint(999)
	tests := []struct {
		name    string
		req     CheckoutRequest
		wantErr error
	}{
		{"empty cart", CheckoutRequest{PaymentMethod: models.PaymentCash}, apperror.ErrValidation},
		{"zero quantity", CheckoutRequest{PaymentMethod: models.PaymentCash, AmountPaid: dec("100"),
			Lines: []LineRequest{{Barcode: "COLA-1", Quantity: 0}}}, apperror.ErrValidation},
		{"unknown method", CheckoutRequest{PaymentMethod: "card", AmountPaid: dec("100"),
			Lines: []LineRequest{{Barcode: "COLA-1", Quantity: 1}}}, apperror.ErrValidation},
		{"underpaid", CheckoutRequest{PaymentMethod: models.PaymentCash, AmountPaid: dec("54.99"),
			Lines: []LineRequest{{Barcode: "COLA-1", Quantity: 1}}}, apperror.ErrInsufficientPayment},
		{"unknown barcode", CheckoutRequest{PaymentMethod: models.PaymentCash, AmountPaid: dec("100"),
			Lines: []LineRequest{{Barcode: "COLA-1", Quantity: 1}, {Barcode: "NOPE", Quantity: 1}}}, apperror.ErrNotFound},
		{"unknown customer", CheckoutRequest{CustomerID: &missing, PaymentMethod: models.PaymentCredit,
			Lines: []LineRequest{{Barcode: "COLA-1", Quantity: 1}}}, apperror.ErrNotFound},
		{"quantity past the cap", CheckoutRequest{PaymentMethod: models.PaymentCash, AmountPaid: dec("1e30"),
			Lines: []LineRequest{{Barcode: "COLA-24", Quantity: 1<<61 + 1}}}, apperror.ErrValidation},
		{"payment too large to store", CheckoutRequest{PaymentMethod: models.PaymentCash, AmountPaid: dec("1e30"),
			Lines: []LineRequest{{Barcode: "COLA-1", Quantity: 1}}}, apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 480)
			_, err := f.svc.Commit(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got := dbtest.Stock(t, f.db, f.cola.ID); !got.Equal(decimal.NewFromInt(480)) {
				t.Fatalf("stock = %s", got)
			}
			if n := dbtest.Count(t, f.db, &models.Sale{}); n != 0 {
				t.Fatalf("sales = %d", n)
			}
		})
	}
}

func TestCommitNamesMissingLine(t *testing.T) {
	f := newFixture(t, 480)
	_, err := f.svc.Commit(context.Background(), CheckoutRequest{
		PaymentMethod: models.PaymentCash,
		AmountPaid:    dec("100"),
		Lines:         []LineRequest{{Barcode: "COLA-1", Quantity: 1}, {Barcode: "NOPE", Quantity: 1}},
	})
	var nf *apperror.NotFoundError
	if !errors.As(err, &nf) || nf.Line != 2 {
		t.Fatalf("error = %v, want not found on line 2", err)
	}
}

func TestPriceChangeDoesNotRewriteHistory(t *testing.T) {
	f := newFixture(t, 480)
	ctx := context.Background()

	d, err := f.svc.Commit(ctx, CheckoutRequest{
		PaymentMethod: models.PaymentCash,
		AmountPaid:    dec("55"),
		Lines:         []LineRequest{{Barcode: "COLA-1", Quantity: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.db.Model(&models.Unit{}).Where("barcode = ?", "COLA-1").Update("price", dec("60")).Error; err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.TotalAmount.Equal(dec("55")) || !got.Lines[0].UnitPrice.Equal(dec("55")) || got.Lines[0].Barcode != "COLA-1" {
		t.Fatalf("sale = %+v", got)
	}
	if _, err := f.svc.Get(ctx, 12345); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("unknown sale error = %v", err)
	}
}

func TestListAndDailySummary(t *testing.T) {
	f := newFixture(t, 480)
	ctx := context.Background()
	c := dbtest.CreateCustomer(t, f.db, "Mang Tonyo", "0")

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	clock := day.Add(9 * time.Hour)
	f.svc.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	reqs := []CheckoutRequest{
		{PaymentMethod: models.PaymentCash, AmountPaid: dec("200"), Lines: []LineRequest{{Barcode: "COLA-1", Quantity: 2}}},
		{PaymentMethod: models.PaymentGCash, AmountPaid: dec("20.50"), Lines: []LineRequest{{Barcode: "CHIPS-1", Quantity: 1}}},
		{CustomerID: &c.ID, PaymentMethod: models.PaymentCredit, Lines: []LineRequest{{Barcode: "COLA-24", Quantity: 1}}},
	}
	for _, r := range reqs {
		if _, err := f.svc.Commit(ctx, r); err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}

	page, err := f.svc.List(ctx, Filter{Start: day, End: day.AddDate(0, 0, 1), PerPage: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 3 || len(page.Sales) != 2 || page.Sales[0].PaymentMethod != models.PaymentCredit {
		t.Fatalf("page = %+v", page)
	}
	if len(page.Sales[0].Lines) != 1 || page.Sales[0].CustomerName != "Mang Tonyo" {
		t.Fatalf("first sale = %+v", page.Sales[0])
	}

	byCustomer, err := f.svc.List(ctx, Filter{CustomerID: &c.ID})
	if err != nil || byCustomer.Total != 1 {
		t.Fatalf("customer filter = %+v, %v", byCustomer, err)
	}

	sum, err := f.svc.DailySummary(ctx, day)
	if err != nil {
		t.Fatalf("DailySummary: %v", err)
	}
	if sum.Count != 3 || !sum.Total.Equal(dec("1330.50")) {
		t.Fatalf("summary = %+v", sum)
	}
	if cash := sum.ByMethod[models.PaymentCash]; cash.Count != 1 || !cash.Total.Equal(dec("110")) {
		t.Fatalf("cash = %+v", cash)
	}

	next, err := f.svc.DailySummary(ctx, day.AddDate(0, 0, 1))
	if err != nil || next.Count != 0 || !next.Total.IsZero() {
		t.Fatalf("next day = %+v, %v", next, err)
	}
}

func TestCommitLineTooLargeForLedger(t *testing.T) {
	f := newFixture(t, 480)
	dbtest.CreateProduct(t, f.db, "Generator", 0,
		dbtest.UnitSpec{Name: "Set", Barcode: "GEN-1", Price: "9999999", Factor: 1})

	_, err := f.svc.Commit(context.Background(), CheckoutRequest{
		PaymentMethod: models.PaymentCash,
		AmountPaid:    dec("9999999999"),
		Lines: []LineRequest{
			{Barcode: "COLA-1", Quantity: 1},
			{Barcode: "GEN-1", Quantity: models.MaxQuantity},
		},
	})
	var verr *apperror.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 1 || verr.Fields[0].Field != "lines[1].quantity" {
		t.Fatalf("error = %v, want validation error on lines[1].quantity", err)
	}
	if got := dbtest.Stock(t, f.db, f.cola.ID); !got.Equal(decimal.NewFromInt(480)) {
		t.Fatalf("stock = %s", got)
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t, 48)

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Commit(context.Background(), CheckoutRequest{
				PaymentMethod: models.PaymentCash,
				AmountPaid:    dec("1200"),
				Lines:         []LineRequest{{Barcode: "COLA-24", Quantity: 1}},
			})
			if err != nil && !errors.Is(err, apperror.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 2 {
		t.Fatalf("succeeded = %d, want 2", succeeded)
	}
	if got := dbtest.Stock(t, f.db, f.cola.ID); !got.IsZero() {
		t.Fatalf("stock = %s, want 0", got)
	}
	if n := dbtest.Count(t, f.db, &models.Sale{}); n != 2 {
		t.Fatalf("sales = %d, want 2", n)
	}

	var movements []models.StockMovement
	f.db.Where("product_id = ?", f.cola.ID).Find(&movements)
	deducted := decimal.Zero
	for _, mv := range movements {
		deducted = deducted.Sub(mv.Quantity)
	}
	if !deducted.Equal(decimal.NewFromInt(48)) {
		t.Fatalf("movements deducted %s, want 48", deducted)
	}
}
