package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dukerupert/maycafe/internal/apperr"
	"github.com/dukerupert/maycafe/internal/model"
	"github.com/dukerupert/maycafe/internal/store"
)

func seededItem(t *testing.T, env *testEnv, name string) *model.RedemptionItem {
	t.Helper()
	it, err := store.NewRedemptionStore(env.db).GetItemByName(context.Background(), name)
	if err != nil || it == nil {
		t.Fatalf("seeded item %q: %v", name, err)
	}
	return it
}

func TestListRedemptionItems(t *testing.T) {
	env := setupService(t)
	items, err := env.svc.ListRedemptionItems(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 8 || items[0].PointsRequired != 50 || items[7].PointsRequired != 1000 {
		t.Errorf("items = %d, first %d", len(items), items[0].PointsRequired)
	}
}

func TestRedeem(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := register(t, env.svc, "alice", "")
	grant(t, env, m.ID, 90)
	latte := seededItem(t, env, "Latte Voucher")

	r, err := env.svc.Redeem(ctx, m.ID, latte.ID)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if r.Status != model.RedemptionPending || r.PointsSpent != 80 || r.ItemName != "Latte Voucher" {
		t.Errorf("redemption = %+v", r)
	}

	after := seededItem(t, env, "Latte Voucher")
	if after.Stock != latte.Stock-1 {
		t.Errorf("stock = %d, want %d", after.Stock, latte.Stock-1)
	}
	if balance := assertBalanced(t, env, m.ID); balance != 20 {
		t.Errorf("balance = %d, want 20", balance)
	}
	records, _ := env.svc.PointRecords(ctx, m.ID)
	if records[0].Points != -80 || records[0].Reason != "redeemed Latte Voucher" {
		t.Errorf("latest record = %+v", records[0])
	}

	mine, _ := env.svc.MyRedemptions(ctx, m.ID)
	if len(mine) != 1 || mine[0].ID != r.ID {
		t.Errorf("my redemptions = %+v", mine)
	}
}

func TestRedeemInsufficientPoints(t *testing.T) {
	env := setupService(t)
	m := register(t, env.svc, "alice", "")
	latte := seededItem(t, env, "Latte Voucher")

	_, err := env.svc.Redeem(context.Background(), m.ID, latte.ID)
	if !apperr.Is(err, apperr.InsufficientFunds) {
		t.Fatalf("err = %v, want insufficient funds", err)
	}
	if got := apperr.Message(err); got != "insufficient points: need 80, have 10" {
		t.Errorf("message = %q", got)
	}
}

func TestRedeemUnavailable(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := register(t, env.svc, "alice", "")
	grant(t, env, m.ID, 1000)
	rs := store.NewRedemptionStore(env.db)

	empty, _ := rs.CreateItem(ctx, model.RedemptionItem{Name: "Sold Out", PointsRequired: 1, Stock: 0, Active: true})
	hidden, _ := rs.CreateItem(ctx, model.RedemptionItem{Name: "Retired", PointsRequired: 1, Stock: 5, Active: false})

	tests := []struct {
		name string
		id   int64
		kind apperr.Kind
	}{
		{"missing", 9999, apperr.NotFound},
		{"out of stock", empty.ID, apperr.Validation},
		{"inactive", hidden.ID, apperr.Validation},
	}
	for _, tt := range tests {
		if _, err := env.svc.Redeem(ctx, m.ID, tt.id); !apperr.Is(err, tt.kind) {
			t.Errorf("%s: err = %v, want %s", tt.name, err, tt.kind)
		}
	}
	if balance := assertBalanced(t, env, m.ID); balance != 1010 {
		t.Errorf("balance changed to %d", balance)
	}
}

func TestRedeemRollsBackOnFailure(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := register(t, env.svc, "alice", "")
	grant(t, env, m.ID, 90)
	latte := seededItem(t, env, "Latte Voucher")

	env.svc.afterStockDecrement = func(context.Context) error {
		return errors.New("disk on fire")
	}
	_, err := env.svc.Redeem(ctx, m.ID, latte.ID)
	if !apperr.Is(err, apperr.Internal) {
		t.Fatalf("err = %v, want internal", err)
	}

	if after := seededItem(t, env, "Latte Voucher"); after.Stock != latte.Stock {
		t.Errorf("stock = %d, want %d", after.Stock, latte.Stock)
	}
	if balance := assertBalanced(t, env, m.ID); balance != 100 {
		t.Errorf("balance = %d, want 100", balance)
	}
	records, _ := env.svc.PointRecords(ctx, m.ID)
	if len(records) != 2 {
		t.Errorf("records = %d, want 2", len(records))
	}
	if mine, _ := env.svc.MyRedemptions(ctx, m.ID); len(mine) != 0 {
		t.Errorf("redemptions = %d, want 0", len(mine))
	}
}

func TestConcurrentRedeemLastUnit(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	it, _ := store.NewRedemptionStore(env.db).CreateItem(ctx, model.RedemptionItem{Name: "Last Mug", PointsRequired: 5, Stock: 1, Active: true})

	members := make([]*model.Member, 4)
	for i := range members {
		members[i] = register(t, env.svc, string(rune('a'+i))+"user", "")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, m := range members {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := env.svc.Redeem(ctx, id, it.ID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(m.ID)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("successful redemptions = %d, want 1", wins)
	}
	got, _ := store.NewRedemptionStore(env.db).GetItem(ctx, it.ID)
	if got.Stock != 0 {
		t.Errorf("stock = %d, want 0", got.Stock)
	}
}

func TestSetRedemptionStatus(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	m := register(t, env.svc, "alice", "")
	americano := seededItem(t, env, "Americano Voucher")
	grant(t, env, m.ID, 100)
	r, err := env.svc.Redeem(ctx, m.ID, americano.ID)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if _, err := env.svc.SetRedemptionStatus(ctx, r.ID, "shipped"); !apperr.Is(err, apperr.Validation) {
		t.Errorf("bad status err = %v", err)
	}
	if _, err := env.svc.SetRedemptionStatus(ctx, 999, model.RedemptionClaimed); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("missing err = %v", err)
	}

	got, err := env.svc.SetRedemptionStatus(ctx, r.ID, model.RedemptionClaimed)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got.Status != model.RedemptionClaimed {
		t.Errorf("status = %q", got.Status)
	}
	if _, err := env.svc.SetRedemptionStatus(ctx, r.ID, model.RedemptionCancelled); !apperr.Is(err, apperr.Validation) {
		t.Errorf("settled redemption err = %v, want validation", err)
	}

	all, _ := env.svc.ListAllRedemptions(ctx)
	if len(all) != 1 {
		t.Errorf("all redemptions = %d", len(all))
	}
}
