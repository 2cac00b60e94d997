package quota_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/xraph/quota"
	"github.com/xraph/quota/clock"
	"github.com/xraph/quota/payment"
	"github.com/xraph/quota/store/memory"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

const (
	owner     types.Principal = "owner"
	custodian types.Principal = "vault"
)

type harness struct {
	engine *quota.Engine
	store  *flakyStore
	rail   *payment.StoreRail
}

// flakyStore fails record writes on demand.
type flakyStore struct {
	*memory.Store
	failWrites atomic.Bool
}

var errDiskFull = errors.New("disk full")

func (f *flakyStore) CreateRecord(ctx context.Context, r *usage.Record) error {
	if f.failWrites.Load() {
		return errDiskFull
	}
	return f.Store.CreateRecord(ctx, r)
}

func (f *flakyStore) UpdateRecord(ctx context.Context, r *usage.Record) error {
	if f.failWrites.Load() {
		return errDiskFull
	}
	return f.Store.UpdateRecord(ctx, r)
}

func newHarness(t *testing.T, opts ...quota.Option) *harness {
	t.Helper()

	s := &flakyStore{Store: memory.New()}
	rail := payment.NewStoreRail(s, nil)

	base := []quota.Option{
		quota.WithOwner(owner),
		quota.WithCustodian(custodian),
		quota.WithRail(rail),
		quota.WithPricePerGB(types.USD(100)),
	}
	e := quota.New(s, append(base, opts...)...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })

	return &harness{engine: e, store: s, rail: rail}
}

func as(p types.Principal) context.Context {
	return quota.WithCaller(context.Background(), p)
}

func (h *harness) fund(t *testing.T, p types.Principal, amount types.Money) {
	t.Helper()
	if err := h.rail.Deposit(context.Background(), p, amount); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
}

func (h *harness) balance(t *testing.T, p types.Principal) int64 {
	t.Helper()
	m, err := h.rail.Balance(context.Background(), p, "usd")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	return m.Amount
}

func (h *harness) totalUsers(t *testing.T) uint64 {
	t.Helper()
	n, err := h.engine.GetTotalUsers(context.Background())
	if err != nil {
		t.Fatalf("GetTotalUsers failed: %v", err)
	}
	return n
}

func (h *harness) quotaOf(t *testing.T, p types.Principal) uint64 {
	t.Helper()
	q, err := h.engine.GetUserQuota(context.Background(), p)
	if err != nil {
		t.Fatalf("GetUserQuota failed: %v", err)
	}
	return q
}

func (h *harness) usedOf(t *testing.T, p types.Principal) uint64 {
	t.Helper()
	u, err := h.engine.GetUsedStorage(context.Background(), p)
	if err != nil {
		t.Fatalf("GetUsedStorage failed: %v", err)
	}
	return u
}

// ──────────────────────────────────────────────────
// Ledger
// ──────────────────────────────────────────────────

func TestUnknownUserHasVirtualDefaults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if got := h.quotaOf(t, "stranger"); got != types.DefaultQuota {
		t.Errorf("expected default quota %d, got %d", types.DefaultQuota, got)
	}
	if got := h.usedOf(t, "stranger"); got != 0 {
		t.Errorf("expected zero usage, got %d", got)
	}
	avail, err := h.engine.GetAvailableStorage(ctx, "stranger")
	if err != nil || avail != types.DefaultQuota {
		t.Errorf("expected %d available, got %d (%v)", types.DefaultQuota, avail, err)
	}
	ok, err := h.engine.CanUpload(ctx, "stranger", types.DefaultQuota)
	if err != nil || !ok {
		t.Errorf("expected CanUpload at exactly the default quota, got %v (%v)", ok, err)
	}
	ok, _ = h.engine.CanUpload(ctx, "stranger", types.DefaultQuota+1)
	if ok {
		t.Error("expected CanUpload to refuse one byte over the default quota")
	}

	// Reads never allocate.
	if n := h.totalUsers(t); n != 0 {
		t.Errorf("reads created %d records", n)
	}
	if _, err := h.engine.GetUserStorage(ctx, "stranger"); !errors.Is(err, quota.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestInitializeUser(t *testing.T) {
	h := newHarness(t)

	created, err := h.engine.InitializeUser(as("alice"))
	if err != nil || !created {
		t.Fatalf("expected creation, got %v (%v)", created, err)
	}
	created, err = h.engine.InitializeUser(as("alice"))
	if err != nil || created {
		t.Fatalf("expected idempotent no-op, got %v (%v)", created, err)
	}

	rec, err := h.engine.GetUserStorage(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if rec.QuotaLimit != types.DefaultQuota || rec.UsedStorage != 0 {
		t.Errorf("unexpected record %+v", rec)
	}
	if n := h.totalUsers(t); n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}
}

func TestMissingCallerIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.InitializeUser(ctx); !errors.Is(err, quota.ErrUnauthorized) {
		t.Errorf("InitializeUser: expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.RecordUpload(ctx, types.MiB); !errors.Is(err, quota.ErrUnauthorized) {
		t.Errorf("RecordUpload: expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.engine.UpgradeQuota(ctx, 1); !errors.Is(err, quota.ErrUnauthorized) {
		t.Errorf("UpgradeQuota: expected ErrUnauthorized, got %v", err)
	}
}

func TestUploadDeletionScenario(t *testing.T) {
	h := newHarness(t)
	alice := as("alice")

	if err := h.engine.RecordUpload(alice, 50*types.MiB); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if got := h.usedOf(t, "alice"); got != 50*types.MiB {
		t.Fatalf("expected 50 MiB used, got %d", got)
	}

	err := h.engine.RecordUpload(alice, 60*types.MiB)
	if !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if !quota.IsQuotaError(err) {
		t.Error("IsQuotaError should recognise ErrQuotaExceeded")
	}
	if got := h.usedOf(t, "alice"); got != 50*types.MiB {
		t.Fatalf("rejected upload changed usage to %d", got)
	}

	if err := h.engine.RecordDeletion(alice, 50*types.MiB); err != nil {
		t.Fatalf("deletion: %v", err)
	}
	if got := h.usedOf(t, "alice"); got != 0 {
		t.Fatalf("expected 0 used, got %d", got)
	}

	if err := h.engine.RecordUpload(alice, 60*types.MiB); err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if got := h.usedOf(t, "alice"); got != 60*types.MiB {
		t.Fatalf("expected 60 MiB used, got %d", got)
	}
	if n := h.totalUsers(t); n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}
}

func TestFileSizeValidation(t *testing.T) {
	h := newHarness(t)
	alice := as("alice")
	if _, err := h.engine.InitializeUser(alice); err != nil {
		t.Fatal(err)
	}

	sizes := []struct {
		name string
		size uint64
	}{
		{"zero", 0},
		{"above max file size", types.MaxFileSize + 1},
	}

	for _, tt := range sizes {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.engine.RecordUpload(alice, tt.size); !errors.Is(err, quota.ErrInvalidAmount) {
				t.Errorf("upload: expected ErrInvalidAmount, got %v", err)
			}
			if err := h.engine.RecordDeletion(alice, tt.size); !errors.Is(err, quota.ErrInvalidAmount) {
				t.Errorf("deletion: expected ErrInvalidAmount, got %v", err)
			}
		})
	}

	var verr quota.ValidationError
	if err := h.engine.RecordUpload(alice, 0); !errors.As(err, &verr) || verr.Field != "size" {
		t.Errorf("expected ValidationError on size, got %v", err)
	}
}

func TestFirstUploadOverDefaultCreatesNothing(t *testing.T) {
	h := newHarness(t)

	err := h.engine.RecordUpload(as("bob"), types.DefaultQuota+1)
	if !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if n := h.totalUsers(t); n != 0 {
		t.Errorf("rejected upload created a record (total_users=%d)", n)
	}
	if _, err := h.engine.GetUserStorage(context.Background(), "bob"); !errors.Is(err, quota.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRecordDeletion(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.RecordDeletion(as("ghost"), types.MiB); !errors.Is(err, quota.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if !quota.IsNotFound(quota.ErrUserNotFound) {
		t.Error("IsNotFound should recognise ErrUserNotFound")
	}
	if n := h.totalUsers(t); n != 0 {
		t.Errorf("deletion created a record")
	}

	alice := as("alice")
	if err := h.engine.RecordUpload(alice, 10*types.MiB); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.RecordDeletion(alice, 25*types.MiB); err != nil {
		t.Fatalf("over-deletion must clamp, got %v", err)
	}
	if got := h.usedOf(t, "alice"); got != 0 {
		t.Errorf("expected usage clamped to 0, got %d", got)
	}
}

func TestRecordUploadRandomized(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	type triple struct{ quota, used, size uint64 }
	cases := []triple{
		{types.DefaultQuota, 40 * types.MiB, 60 * types.MiB}, // exactly at the limit
		{types.GiB, types.GiB - 1, 1},                        // last byte
		{types.GiB, types.GiB, 1},                            // full
		{types.MiB, 0, types.MiB + 1},                        // first upload over
	}
	for i := 0; i < 200; i++ {
		q := 1 + rng.Uint64N(8*types.GiB)
		used := rng.Uint64N(min(q, types.MaxFileSize) + 1)
		size := 1 + rng.Uint64N(types.MaxFileSize)
		cases = append(cases, triple{q, used, size})
	}

	h := newHarness(t)
	admin := as(owner)

	for i, c := range cases {
		user := types.Principal("user-" + strconv.Itoa(i))
		ctx := as(user)

		if err := h.engine.AdminSetUserQuota(admin, user, c.quota); err != nil {
			t.Fatalf("case %d: set quota: %v", i, err)
		}
		if c.used > 0 {
			if err := h.engine.RecordUpload(ctx, c.used); err != nil {
				t.Fatalf("case %d: seed usage %d/%d: %v", i, c.used, c.quota, err)
			}
		}

		err := h.engine.RecordUpload(ctx, c.size)
		fits := c.used+c.size <= c.quota
		switch {
		case fits && err != nil:
			t.Errorf("case %d %+v: expected success, got %v", i, c, err)
		case !fits && !errors.Is(err, quota.ErrQuotaExceeded):
			t.Errorf("case %d %+v: expected ErrQuotaExceeded, got %v", i, c, err)
		}

		want := c.used
		if fits {
			want += c.size
		}
		if got := h.usedOf(t, user); got != want {
			t.Errorf("case %d %+v: used=%d want %d", i, c, got, want)
		}
	}
}

func TestReplayMatchesNetUsage(t *testing.T) {
	h := newHarness(t)
	alice := as("alice")
	rng := rand.New(rand.NewPCG(3, 5))

	var model uint64
	exists := false
	for i := 0; i < 500; i++ {
		size := 1 + rng.Uint64N(20*types.MiB)
		if rng.IntN(2) == 0 {
			err := h.engine.RecordUpload(alice, size)
			if model+size <= types.DefaultQuota {
				if err != nil {
					t.Fatalf("step %d: upload %d rejected: %v", i, size, err)
				}
				model += size
				exists = true
			} else if !errors.Is(err, quota.ErrQuotaExceeded) {
				t.Fatalf("step %d: expected ErrQuotaExceeded, got %v", i, err)
			}
			continue
		}
		err := h.engine.RecordDeletion(alice, size)
		if !exists {
			if !errors.Is(err, quota.ErrUserNotFound) {
				t.Fatalf("step %d: expected ErrUserNotFound, got %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("step %d: deletion: %v", i, err)
		}
		if size >= model {
			model = 0
		} else {
			model -= size
		}
	}

	if got := h.usedOf(t, "alice"); got != model {
		t.Errorf("used=%d, model=%d", got, model)
	}
}

func TestLastUpdatedAdvances(t *testing.T) {
	lc := clock.NewLogical(100)
	h := newHarness(t, quota.WithClock(lc))
	alice := as("alice")

	var last uint64
	for i := 0; i < 5; i++ {
		if err := h.engine.RecordUpload(alice, types.MiB); err != nil {
			t.Fatal(err)
		}
		rec, err := h.engine.GetUserStorage(context.Background(), "alice")
		if err != nil {
			t.Fatal(err)
		}
		if rec.LastUpdated <= last {
			t.Fatalf("marker did not advance: %d <= %d", rec.LastUpdated, last)
		}
		if rec.Version != uint64(i+1) {
			t.Errorf("expected version %d, got %d", i+1, rec.Version)
		}
		last = rec.LastUpdated
	}
	if last != lc.Current() {
		t.Errorf("expected last marker %d, got %d", lc.Current(), last)
	}
}

func TestConcurrentUploadsRespectQuota(t *testing.T) {
	h := newHarness(t)
	alice := as("alice")

	var wg sync.WaitGroup
	var accepted atomic.Int64
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.engine.RecordUpload(alice, types.MiB); err == nil {
				accepted.Add(1)
			} else if !errors.Is(err, quota.ErrQuotaExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := accepted.Load(); got != 100 {
		t.Errorf("expected exactly 100 accepted uploads, got %d", got)
	}
	if got := h.usedOf(t, "alice"); got != types.DefaultQuota {
		t.Errorf("expected usage at quota, got %d", got)
	}
	if n := h.totalUsers(t); n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}
}

// ──────────────────────────────────────────────────
// Total users
// ──────────────────────────────────────────────────

func TestTotalUsersCountsEachUserOnce(t *testing.T) {
	h := newHarness(t)
	admin := as(owner)
	h.fund(t, "carol", types.USD(10_000))

	steps := []struct {
		name string
		run  func() error
		want uint64
	}{
		{"initialize", func() error { _, err := h.engine.InitializeUser(as("alice")); return err }, 1},
		{"initialize again", func() error { _, err := h.engine.InitializeUser(as("alice")); return err }, 1},
		{"upload by initialized user", func() error { return h.engine.RecordUpload(as("alice"), types.MiB) }, 1},
		{"first upload", func() error { return h.engine.RecordUpload(as("bob"), types.MiB) }, 2},
		{"second upload", func() error { return h.engine.RecordUpload(as("bob"), types.MiB) }, 2},
		{"upgrade", func() error { _, err := h.engine.UpgradeQuota(as("carol"), 1); return err }, 3},
		{"upgrade again", func() error { _, err := h.engine.UpgradeQuota(as("carol"), 1); return err }, 3},
		{"admin set", func() error { return h.engine.AdminSetUserQuota(admin, "dave", types.GiB) }, 4},
		{"admin set existing", func() error { return h.engine.AdminSetUserQuota(admin, "alice", types.GiB) }, 4},
		{"deletion", func() error { return h.engine.RecordDeletion(as("bob"), types.MiB) }, 4},
	}

	for _, s := range steps {
		if err := s.run(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if got := h.totalUsers(t); got != s.want {
			t.Fatalf("%s: total_users=%d, want %d", s.name, got, s.want)
		}
	}
}

// ──────────────────────────────────────────────────
// Upgrades
// ──────────────────────────────────────────────────

func TestUpgradeQuota(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "alice", types.USD(1_000))

	rec, err := h.engine.UpgradeQuota(as("alice"), 3)
	if err != nil {
		t.Fatalf("UpgradeQuota failed: %v", err)
	}

	want := types.DefaultQuota + 3*types.GiB
	if rec.QuotaLimit != want {
		t.Errorf("returned limit %d, want %d", rec.QuotaLimit, want)
	}
	if got := h.quotaOf(t, "alice"); got != want {
		t.Errorf("stored limit %d, want %d", got, want)
	}
	if got := h.balance(t, "alice"); got != 700 {
		t.Errorf("expected caller debited to 700, got %d", got)
	}
	if got := h.balance(t, custodian); got != 300 {
		t.Errorf("expected custodian credited 300, got %d", got)
	}
}

func TestUpgradeQuotaInvalidAmounts(t *testing.T) {
	h := newHarness(t)
	h.fund(t, "alice", types.USD(1_000_000))

	for _, gb := range []uint64{0, types.MaxPackageGB + 1} {
		_, err := h.engine.UpgradeQuota(as("alice"), gb)
		if !errors.Is(err, quota.ErrInvalidAmount) {
			t.Errorf("gb=%d: expected ErrInvalidAmount, got %v", gb, err)
		}
	}

	if n := h.totalUsers(t); n != 0 {
		t.Errorf("invalid upgrade created a record")
	}
	if got := h.balance(t, "alice"); got != 1_000_000 {
		t.Errorf("invalid upgrade charged the caller: %d", got)
	}
}

func TestUpgradeInsufficientFundsLeavesQuota(t *testing.T) {
	h := newHarness(t)
	alice := as("alice")
	if _, err := h.engine.InitializeUser(alice); err != nil {
		t.Fatal(err)
	}
	h.fund(t, "alice", types.USD(150))

	_, err := h.engine.UpgradeQuota(alice, 2)
	if !errors.Is(err, quota.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	if !errors.Is(err, payment.ErrInsufficientFunds) {
		t.Errorf("expected the rail error to be wrapped, got %v", err)
	}
	if got := h.quotaOf(t, "alice"); got != types.DefaultQuota {
		t.Errorf("quota changed to %d", got)
	}
	if got := h.balance(t, "alice"); got != 150 {
		t.Errorf("balance changed to %d", got)
	}
}

func TestUpgradeFreshUserDeclinedCreatesNothing(t *testing.T) {
	h := newHarness(t)

	if _, err := h.engine.UpgradeQuota(as("broke"), 1); !errors.Is(err, quota.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	if n := h.totalUsers(t); n != 0 {
		t.Errorf("declined upgrade created a record")
	}
}

func TestUpgradeBeyondMaxQuotaIsNotCharged(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.AdminSetUserQuota(as(owner), "alice", types.MaxQuota-types.GiB/2); err != nil {
		t.Fatal(err)
	}
	h.fund(t, "alice", types.USD(1_000))

	_, err := h.engine.UpgradeQuota(as("alice"), 1)
	if !errors.Is(err, quota.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if got := h.balance(t, "alice"); got != 1_000 {
		t.Errorf("caller was charged for a rejected grant: balance %d", got)
	}
	if got := h.quotaOf(t, "alice"); got != types.MaxQuota-types.GiB/2 {
		t.Errorf("quota changed to %d", got)
	}
}

func TestUpgradeRefundsWhenCommitFails(t *testing.T) {
	rec := &hookRecorder{}
	h := newHarness(t, quota.WithPlugin(rec))
	alice := as("alice")
	if _, err := h.engine.InitializeUser(alice); err != nil {
		t.Fatal(err)
	}
	h.fund(t, "alice", types.USD(500))

	h.store.failWrites.Store(true)
	_, err := h.engine.UpgradeQuota(alice, 2)
	h.store.failWrites.Store(false)

	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if errors.Is(err, quota.ErrRefundFailed) {
		t.Fatalf("refund should have succeeded: %v", err)
	}
	if got := h.balance(t, "alice"); got != 500 {
		t.Errorf("expected balance restored to 500, got %d", got)
	}
	if got := h.balance(t, custodian); got != 0 {
		t.Errorf("custodian kept %d", got)
	}
	if got := h.quotaOf(t, "alice"); got != types.DefaultQuota {
		t.Errorf("quota changed to %d", got)
	}
	if rec.count("refunded") != 1 {
		t.Errorf("expected one refund event, got %d", rec.count("refunded"))
	}
}

func TestUpgradeReportsFailedRefund(t *testing.T) {
	var calls atomic.Int32
	rail := payment.RailFunc(func(_ context.Context, amount types.Money, from, to types.Principal) (*payment.Receipt, error) {
		if calls.Add(1) > 1 {
			return nil, errors.New("rail offline")
		}
		return &payment.Receipt{From: from, To: to, Amount: amount}, nil
	})
	h := newHarness(t, quota.WithRail(rail))

	h.store.failWrites.Store(true)
	_, err := h.engine.UpgradeQuota(as("alice"), 1)
	if !errors.Is(err, quota.ErrRefundFailed) {
		t.Fatalf("expected ErrRefundFailed, got %v", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Errorf("expected commit error to be preserved, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// Packages
// ──────────────────────────────────────────────────

func TestPurchaseQuotaPackageChargesOnce(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.AdminCreateQuotaPackage(as(owner), 7, 10, types.USD(500)); err != nil {
		t.Fatal(err)
	}
	h.fund(t, "alice", types.USD(2_000))

	rec, err := h.engine.PurchaseQuotaPackage(as("alice"), 7)
	if err != nil {
		t.Fatalf("PurchaseQuotaPackage failed: %v", err)
	}
	if want := types.DefaultQuota + 10*types.GiB; rec.QuotaLimit != want {
		t.Errorf("limit %d, want %d", rec.QuotaLimit, want)
	}
	// Package price only; no additional per-GB charge.
	if got := h.balance(t, "alice"); got != 1_500 {
		t.Errorf("expected one charge of 500, balance is %d", got)
	}
	if got := h.balance(t, custodian); got != 500 {
		t.Errorf("custodian received %d", got)
	}
}

func TestPurchaseQuotaPackageRejections(t *testing.T) {
	h := newHarness(t)
	admin := as(owner)
	if _, err := h.engine.AdminCreateQuotaPackage(admin, 1, 5, types.USD(100)); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.AdminSetPackageActive(admin, 1, false); err != nil {
		t.Fatal(err)
	}
	h.fund(t, "alice", types.USD(1_000))

	_, err := h.engine.PurchaseQuotaPackage(as("alice"), 99)
	if !errors.Is(err, quota.ErrInvalidAmount) || !errors.Is(err, quota.ErrPackageNotFound) {
		t.Errorf("missing package: expected ErrInvalidAmount wrapping ErrPackageNotFound, got %v", err)
	}

	_, err = h.engine.PurchaseQuotaPackage(as("alice"), 1)
	if !errors.Is(err, quota.ErrInvalidAmount) {
		t.Errorf("inactive package: expected ErrInvalidAmount, got %v", err)
	}

	if got := h.balance(t, "alice"); got != 1_000 {
		t.Errorf("rejected purchases charged the caller: %d", got)
	}
	if n := h.totalUsers(t); n != 0 {
		t.Errorf("rejected purchases created a record")
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.AdminCreateQuotaPackage(as(owner), 1, 5, types.USD(900)); err != nil {
		t.Fatal(err)
	}
	h.fund(t, "alice", types.USD(899))

	if _, err := h.engine.PurchaseQuotaPackage(as("alice"), 1); !errors.Is(err, quota.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	if got := h.quotaOf(t, "alice"); got != types.DefaultQuota {
		t.Errorf("quota changed to %d", got)
	}
}

func TestAdminCreateQuotaPackageValidation(t *testing.T) {
	h := newHarness(t)
	admin := as(owner)

	tests := []struct {
		name  string
		gb    uint64
		price types.Money
	}{
		{"zero gb", 0, types.USD(100)},
		{"too many gb", types.MaxPackageGB + 1, types.USD(100)},
		{"zero price", 10, types.USD(0)},
		{"negative price", 10, types.USD(-1)},
		{"price above maximum", 10, types.USD(10_001)},
		{"wrong currency", 10, types.EUR(100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.AdminCreateQuotaPackage(admin, 1, tt.gb, tt.price)
			if !errors.Is(err, quota.ErrInvalidAmount) {
				t.Errorf("expected ErrInvalidAmount, got %v", err)
			}
		})
	}

	if _, err := h.engine.GetQuotaPackage(context.Background(), 1); !errors.Is(err, quota.ErrPackageNotFound) {
		t.Errorf("rejected packages were stored: %v", err)
	}

	// Bounds are inclusive.
	if _, err := h.engine.AdminCreateQuotaPackage(admin, 1, types.MaxPackageGB, types.USD(10_000)); err != nil {
		t.Errorf("expected maximum package to be accepted, got %v", err)
	}
}

func TestAdminCreateQuotaPackageOverwrites(t *testing.T) {
	h := newHarness(t)
	admin := as(owner)
	ctx := context.Background()

	if _, err := h.engine.AdminCreateQuotaPackage(admin, 1, 5, types.USD(100)); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.AdminSetPackageActive(admin, 1, false); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.AdminCreateQuotaPackage(admin, 1, 20, types.USD(800)); err != nil {
		t.Fatal(err)
	}

	b, err := h.engine.GetQuotaPackage(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Active || b.AdditionalGB != 20 || b.AdditionalBytes != 20*types.GiB || !b.Price.Equal(types.USD(800)) {
		t.Errorf("package not fully replaced: %+v", b)
	}
}

// ──────────────────────────────────────────────────
// Administration
// ──────────────────────────────────────────────────

func TestAdminAuthorization(t *testing.T) {
	h := newHarness(t)
	mallory := as("mallory")

	if err := h.engine.AdminSetUserQuota(mallory, "alice", types.GiB); !errors.Is(err, quota.ErrUnauthorized) {
		t.Errorf("non-owner set quota: expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.AdminSetUserQuota(as(owner), "alice", 0); !errors.Is(err, quota.ErrInvalidAmount) {
		t.Errorf("owner zero quota: expected ErrInvalidAmount, got %v", err)
	}
	if err := h.engine.AdminSetUserQuota(as(owner), "alice", types.MaxQuota+1); !errors.Is(err, quota.ErrInvalidAmount) {
		t.Errorf("owner quota above max: expected ErrInvalidAmount, got %v", err)
	}

	admins := []struct {
		name string
		call func(ctx context.Context) error
	}{
		{"create package", func(ctx context.Context) error {
			_, err := h.engine.AdminCreateQuotaPackage(ctx, 1, 1, types.USD(1))
			return err
		}},
		{"set package active", func(ctx context.Context) error {
			return h.engine.AdminSetPackageActive(ctx, 1, false)
		}},
		{"update price", func(ctx context.Context) error {
			return h.engine.AdminUpdatePricePerGB(ctx, types.USD(1))
		}},
		{"withdraw", func(ctx context.Context) error {
			_, err := h.engine.AdminWithdraw(ctx, types.USD(1), "mallory")
			return err
		}},
		{"transfer ownership", func(ctx context.Context) error {
			return h.engine.AdminTransferOwnership(ctx, "mallory")
		}},
	}

	for _, a := range admins {
		t.Run(a.name, func(t *testing.T) {
			if err := a.call(mallory); !errors.Is(err, quota.ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
			if err := a.call(context.Background()); !errors.Is(err, quota.ErrUnauthorized) {
				t.Errorf("anonymous: expected ErrUnauthorized, got %v", err)
			}
		})
	}

	if n := h.totalUsers(t); n != 0 {
		t.Errorf("unauthorized calls created records")
	}
}

func TestNoOwnerRejectsEveryone(t *testing.T) {
	e := quota.New(memory.New())
	err := e.AdminSetUserQuota(as(""), "alice", types.GiB)
	if !errors.Is(err, quota.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	err = e.AdminSetUserQuota(as("anyone"), "alice", types.GiB)
	if !errors.Is(err, quota.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAdminSetUserQuotaPreservesUsage(t *testing.T) {
	h := newHarness(t)
	alice := as("alice")
	if err := h.engine.RecordUpload(alice, 80*types.MiB); err != nil {
		t.Fatal(err)
	}

	// Shrinking below current usage is allowed and leaves usage intact.
	if err := h.engine.AdminSetUserQuota(as(owner), "alice", 50*types.MiB); err != nil {
		t.Fatalf("AdminSetUserQuota failed: %v", err)
	}
	if got := h.usedOf(t, "alice"); got != 80*types.MiB {
		t.Errorf("usage changed to %d", got)
	}
	avail, _ := h.engine.GetAvailableStorage(context.Background(), "alice")
	if avail != 0 {
		t.Errorf("expected 0 available while over quota, got %d", avail)
	}
	if err := h.engine.RecordUpload(alice, 1); !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Errorf("expected uploads blocked while over quota, got %v", err)
	}

	if err := h.engine.RecordDeletion(alice, 40*types.MiB); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.RecordUpload(alice, 10*types.MiB); err != nil {
		t.Errorf("expected upload to succeed once under quota, got %v", err)
	}
}

func TestAdminUpdatePricePerGB(t *testing.T) {
	h := newHarness(t)
	admin := as(owner)
	ctx := context.Background()

	if err := h.engine.AdminUpdatePricePerGB(admin, types.USD(250)); err != nil {
		t.Fatalf("AdminUpdatePricePerGB failed: %v", err)
	}
	price, err := h.engine.PricePerGB(ctx)
	if err != nil || !price.Equal(types.USD(250)) {
		t.Fatalf("expected $2.50, got %v (%v)", price, err)
	}

	h.fund(t, "alice", types.USD(1_000))
	if _, err := h.engine.UpgradeQuota(as("alice"), 2); err != nil {
		t.Fatal(err)
	}
	if got := h.balance(t, "alice"); got != 500 {
		t.Errorf("expected upgrade charged at the new price, balance %d", got)
	}

	// A second engine over the same store sees the persisted price.
	other := quota.New(h.store, quota.WithPricePerGB(types.USD(100)))
	price, err = other.PricePerGB(ctx)
	if err != nil || !price.Equal(types.USD(250)) {
		t.Errorf("price not persisted: %v (%v)", price, err)
	}

	for _, bad := range []types.Money{types.USD(0), types.USD(10_001), types.EUR(100)} {
		if err := h.engine.AdminUpdatePricePerGB(admin, bad); !errors.Is(err, quota.ErrInvalidAmount) {
			t.Errorf("price %v: expected ErrInvalidAmount, got %v", bad, err)
		}
	}
}

func TestAdminWithdraw(t *testing.T) {
	h := newHarness(t)
	admin := as(owner)
	h.fund(t, "alice", types.USD(1_000))
	if _, err := h.engine.UpgradeQuota(as("alice"), 4); err != nil {
		t.Fatal(err)
	}

	receipt, err := h.engine.AdminWithdraw(admin, types.USD(300), "treasury")
	if err != nil {
		t.Fatalf("AdminWithdraw failed: %v", err)
	}
	if receipt.From != custodian || receipt.To != "treasury" {
		t.Errorf("unexpected receipt %+v", receipt)
	}
	if got := h.balance(t, custodian); got != 100 {
		t.Errorf("custodian balance %d, want 100", got)
	}
	if got := h.balance(t, "treasury"); got != 300 {
		t.Errorf("treasury balance %d, want 300", got)
	}

	if _, err := h.engine.AdminWithdraw(admin, types.USD(101), "treasury"); !errors.Is(err, payment.ErrInsufficientFunds) {
		t.Errorf("expected rail refusal, got %v", err)
	}
	if _, err := h.engine.AdminWithdraw(admin, types.USD(0), "treasury"); !errors.Is(err, quota.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero amount, got %v", err)
	}
	if _, err := h.engine.AdminWithdraw(admin, types.USD(1), ""); !errors.Is(err, quota.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for missing recipient, got %v", err)
	}
}

func TestUppercaseCurrencyCodes(t *testing.T) {
	h := newHarness(t, quota.WithPricePerGB(types.Money{Amount: 100, Currency: "USD"}))
	admin := as(owner)

	if got := h.engine.Currency(); got != "usd" {
		t.Fatalf("Currency() = %q, want usd", got)
	}

	b, err := h.engine.AdminCreateQuotaPackage(admin, 1, 10, types.Money{Amount: 500, Currency: "USD"})
	if err != nil {
		t.Fatalf("AdminCreateQuotaPackage: %v", err)
	}
	if !b.Price.Equal(types.USD(500)) {
		t.Errorf("stored price = %v, want %v", b.Price, types.USD(500))
	}

	_, err = h.engine.AdminCreateQuotaPackage(admin, 2, 10, types.Money{Amount: 10001, Currency: "USD"})
	if !errors.Is(err, quota.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for price over the maximum, got %v", err)
	}
	_, err = h.engine.AdminCreateQuotaPackage(admin, 3, 10, types.Money{Amount: 500, Currency: "EUR"})
	if !errors.Is(err, quota.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for foreign currency, got %v", err)
	}

	if err := h.engine.AdminUpdatePricePerGB(admin, types.Money{Amount: 250, Currency: "Usd"}); err != nil {
		t.Fatalf("AdminUpdatePricePerGB: %v", err)
	}
	price, err := h.engine.PricePerGB(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(types.USD(250)) {
		t.Errorf("price = %v, want %v", price, types.USD(250))
	}

	h.fund(t, "carol", types.USD(1000))
	if _, err := h.engine.PurchaseQuotaPackage(as("carol"), 1); err != nil {
		t.Fatalf("PurchaseQuotaPackage: %v", err)
	}
	if _, err := h.engine.UpgradeQuota(as("carol"), 2); err != nil {
		t.Fatalf("UpgradeQuota: %v", err)
	}
	if got := h.balance(t, custodian); got != 1000 {
		t.Fatalf("custodian balance = %d, want 1000", got)
	}

	receipt, err := h.engine.AdminWithdraw(admin, types.Money{Amount: 300, Currency: "USD"}, "treasury")
	if err != nil {
		t.Fatalf("AdminWithdraw: %v", err)
	}
	if receipt.Amount.Currency != "usd" {
		t.Errorf("receipt currency = %q, want usd", receipt.Amount.Currency)
	}
	if got := h.balance(t, "treasury"); got != 300 {
		t.Errorf("treasury balance = %d, want 300", got)
	}
}

func TestAdminTransferOwnership(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.AdminTransferOwnership(as(owner), ""); !errors.Is(err, quota.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for empty owner, got %v", err)
	}
	if err := h.engine.AdminTransferOwnership(as(owner), "successor"); err != nil {
		t.Fatalf("AdminTransferOwnership failed: %v", err)
	}
	if h.engine.Owner() != "successor" {
		t.Errorf("owner is %q", h.engine.Owner())
	}
	if err := h.engine.AdminSetUserQuota(as(owner), "alice", types.GiB); !errors.Is(err, quota.ErrUnauthorized) {
		t.Errorf("previous owner kept rights: %v", err)
	}
	if err := h.engine.AdminSetUserQuota(as("successor"), "alice", types.GiB); err != nil {
		t.Errorf("new owner rejected: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Hooks
// ──────────────────────────────────────────────────

func TestHooksFireAfterCommit(t *testing.T) {
	rec := &hookRecorder{}
	h := newHarness(t, quota.WithPlugin(rec))
	alice := as("alice")

	_ = h.engine.RecordUpload(alice, 10*types.MiB)
	_ = h.engine.RecordUpload(alice, 10*types.MiB)
	_ = h.engine.RecordUpload(alice, types.GiB)
	_ = h.engine.RecordDeletion(alice, types.MiB)

	want := map[string]int{
		"initialized": 1,
		"upload":      2,
		"exceeded":    1,
		"deletion":    1,
	}
	for k, v := range want {
		if got := rec.count(k); got != v {
			t.Errorf("%s: got %d events, want %d", k, got, v)
		}
	}
}

func TestErrorHelpers(t *testing.T) {
	if !quota.IsRetryable(quota.ErrConflict) {
		t.Error("ErrConflict should be retryable")
	}
	if quota.IsRetryable(quota.ErrQuotaExceeded) {
		t.Error("ErrQuotaExceeded should not be retryable")
	}
	if !errors.Is(quota.ValidationError{Field: "x", Message: "y"}, quota.ErrInvalidAmount) {
		t.Error("ValidationError should match ErrInvalidAmount")
	}
	if !quota.IsNotFound(quota.ErrPackageNotFound) {
		t.Error("IsNotFound should recognise ErrPackageNotFound")
	}
}
