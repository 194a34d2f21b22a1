package customers

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-pos-ledger/internal/apperror"
	"go-pos-ledger/internal/database/dbtest"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)
	return NewService(db, ledger.NewCreditLedger(db), nil, zap.NewNop()), db
}

func TestCreateWithOpeningBalance(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, Input{Name: " Aling Nena ", PhoneNumber: "09171234567", CreditBalance: decimal.RequireFromString("850")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Name != "Aling Nena" || !c.CreditBalance.Equal(decimal.NewFromInt(850)) {
		t.Fatalf("customer = %+v", c)
	}

	entries, err := svc.Ledger(ctx, c.ID, 0)
	if err != nil || len(entries) != 1 || entries[0].Kind != models.CreditCharge {
		t.Fatalf("ledger = %+v, %v", entries, err)
	}
	if got := dbtest.Balance(t, db, c.ID); !got.Equal(decimal.NewFromInt(850)) {
		t.Fatalf("balance = %s", got)
	}
}

func TestPay(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		method      string
		wantErr     error
		wantBalance string
	}{
		{"more than owed", "900.00", models.PaymentCash, apperror.ErrExceedsBalance, "850"},
		{"exact balance", "850.00", models.PaymentGCash, nil, "0"},
		{"partial", "300", models.PaymentCash, nil, "550"},
		{"zero", "0", models.PaymentCash, apperror.ErrInvalidAmount, "850"},
		{"negative", "-10", models.PaymentCash, apperror.ErrInvalidAmount, "850"},
		{"sub-centavo", "10.005", models.PaymentCash, apperror.ErrValidation, "850"},
		{"credit is not a repayment method", "10", models.PaymentCredit, apperror.ErrValidation, "850"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db := newService(t)
			c := dbtest.CreateCustomer(t, db, "Aling Nena", "850.00")

			entry, err := svc.Pay(context.Background(), c.ID, PaymentRequest{Amount: decimal.RequireFromString(tt.amount), Method: tt.method})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Pay: %v", err)
			} else if !entry.BalanceAfter.Equal(decimal.RequireFromString(tt.wantBalance)) {
				t.Fatalf("entry balance = %s", entry.BalanceAfter)
			}

			if got := dbtest.Balance(t, db, c.ID); !got.Equal(decimal.RequireFromString(tt.wantBalance)) {
				t.Fatalf("balance = %s, want %s", got, tt.wantBalance)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	owing := dbtest.CreateCustomer(t, db, "Owes", "10")
	if err := svc.Delete(ctx, owing.ID); !errors.Is(err, apperror.ErrInUse) {
		t.Fatalf("delete owing customer = %v, want ErrInUse", err)
	}

	settled := dbtest.CreateCustomer(t, db, "Settled", "0")
	sale := models.Sale{
		CustomerID:    &settled.ID,
		TotalAmount:   decimal.NewFromInt(5),
		AmountPaid:    decimal.NewFromInt(5),
		ChangeDue:     decimal.Zero,
		PaymentMethod: models.PaymentCash,
		SaleDate:      time.Now().UTC(),
	}
	if err := db.Create(&sale).Error; err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, settled.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var kept models.Sale
	if err := db.First(&kept, sale.ID).Error; err != nil {
		t.Fatalf("sale should survive: %v", err)
	}
	if kept.CustomerID != nil {
		t.Fatalf("sale still points at customer %d", *kept.CustomerID)
	}
	if _, err := svc.Get(ctx, settled.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Get after delete = %v", err)
	}
}

func TestUpdateAndList(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	c := dbtest.CreateCustomer(t, db, "Mang Tonyo", "20")
	dbtest.CreateCustomer(t, db, "Aling Nena", "0")

	got, err := svc.Update(ctx, c.ID, Input{Name: "Mang Tonyo Cruz", Address: "Purok 3", CreditBalance: decimal.NewFromInt(9999)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "Mang Tonyo Cruz" || !got.CreditBalance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("customer = %+v", got)
	}
	if _, err := svc.Update(ctx, 777, Input{Name: "Ghost"}); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("update unknown = %v", err)
	}

	all, err := svc.List(ctx, "")
	if err != nil || len(all) != 2 || all[0].Name != "Aling Nena" {
		t.Fatalf("List = %+v, %v", all, err)
	}
	found, err := svc.List(ctx, "tonyo")
	if err != nil || len(found) != 1 {
		t.Fatalf("List(tonyo) = %+v, %v", found, err)
	}

	if _, err := svc.Ledger(ctx, 777, 10); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Ledger unknown = %v", err)
	}
}
