package installs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"backend/internal/security"
	"backend/internal/store"
)

type memStore struct {
	recs    map[string]*store.ShopRecord
	nextID  int64
	findErr error
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{recs: map[string]*store.ShopRecord{}}
}

func (m *memStore) Find(ctx context.Context, shopAddress string) (*store.ShopRecord, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	rec, ok := m.recs[shopAddress]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memStore) Create(ctx context.Context, rec *store.ShopRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.nextID++
	rec.ID = m.nextID
	cp := *rec
	m.recs[rec.ShopAddress] = &cp
	return nil
}

func (m *memStore) Save(ctx context.Context, rec *store.ShopRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *rec
	m.recs[rec.ShopAddress] = &cp
	return nil
}

func testMachine(t *testing.T) (*Machine, *memStore) {
	t.Helper()
	cipher, err := security.NewCipher("")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := newMemStore()
	return NewMachine(st, cipher, logger), st
}

func TestStatusOf(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name string
		rec  *store.ShopRecord
		want Status
	}{
		{"no record", nil, NotKnown},
		{"requested", &store.ShopRecord{ShopAddress: "a.myshopify.com"}, InstallRequested},
		{"installed", &store.ShopRecord{InstallTime: &now}, Installed},
		{"uninstalled", &store.ShopRecord{InstallTime: &now, UninstallTime: &now}, Uninstalled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusOf(tc.rec); got != tc.want {
				t.Errorf("StatusOf = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestInstallFlow(t *testing.T) {
	ctx := context.Background()
	m, _ := testMachine(t)
	const shop = "flow.myshopify.com"

	rec, err := m.RequestInstall(ctx, shop)
	if err != nil {
		t.Fatalf("RequestInstall: %v", err)
	}
	if len(rec.Nonce) != 32 {
		t.Errorf("nonce length = %d, want 32", len(rec.Nonce))
	}
	if rec.AskTime.IsZero() {
		t.Error("ask time not set")
	}
	if _, status, _ := m.Lookup(ctx, shop); status != InstallRequested {
		t.Fatalf("status = %v, want INSTALL_REQUESTED", status)
	}

	// A second request while one is pending is rejected.
	if _, err := m.RequestInstall(ctx, shop); !errors.Is(err, ErrAlreadyInstalled) {
		t.Errorf("second RequestInstall err = %v, want ErrAlreadyInstalled", err)
	}

	// Wrong state token fails and leaves the record untouched.
	if err := m.ConfirmInstallation(ctx, shop, "bogus", "tok"); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("ConfirmInstallation bad state err = %v, want ErrStateMismatch", err)
	}
	if _, status, _ := m.Lookup(ctx, shop); status != InstallRequested {
		t.Fatalf("status after bad state = %v, want INSTALL_REQUESTED", status)
	}

	if err := m.ConfirmInstallation(ctx, shop, rec.Nonce, "shpat_abc"); err != nil {
		t.Fatalf("ConfirmInstallation: %v", err)
	}
	got, status, err := m.Lookup(ctx, shop)
	if err != nil || status != Installed {
		t.Fatalf("status = %v err = %v, want INSTALLED", status, err)
	}
	token, err := m.AccessToken(got)
	if err != nil || token != "shpat_abc" {
		t.Fatalf("AccessToken = %q err = %v", token, err)
	}
}

func TestConfirmWithoutRequest(t *testing.T) {
	ctx := context.Background()
	m, _ := testMachine(t)
	err := m.ConfirmInstallation(ctx, "ghost.myshopify.com", "state", "tok")
	if !errors.Is(err, ErrNotRequested) {
		t.Fatalf("err = %v, want ErrNotRequested", err)
	}
}

func TestUninstallAndReinstall(t *testing.T) {
	ctx := context.Background()
	m, _ := testMachine(t)
	const shop = "cycle.myshopify.com"

	rec, _ := m.RequestInstall(ctx, shop)
	if err := m.ConfirmInstallation(ctx, shop, rec.Nonce, "tok"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := m.UpdateBillingReference(ctx, shop, 777); err != nil {
		t.Fatalf("billing ref: %v", err)
	}

	if err := m.Uninstall(ctx, shop); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	got, status, _ := m.Lookup(ctx, shop)
	if status != Uninstalled {
		t.Fatalf("status = %v, want UNINSTALLED", status)
	}
	if got.AccessToken != nil || got.RACID != nil {
		t.Error("credentials not cleared on uninstall")
	}

	// Uninstalling twice is rejected.
	if err := m.Uninstall(ctx, shop); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("second Uninstall err = %v, want ErrNotInstalled", err)
	}

	// Reinstall resets the handshake with a fresh nonce.
	re, err := m.RequestReinstall(ctx, shop)
	if err != nil {
		t.Fatalf("RequestReinstall: %v", err)
	}
	if re.Nonce == rec.Nonce {
		t.Error("reinstall reused the old nonce")
	}
	if re.InstallTime != nil || re.UninstallTime != nil || re.AccessToken != nil || re.RACID != nil {
		t.Error("reinstall did not clear lifecycle fields")
	}
	if _, status, _ := m.Lookup(ctx, shop); status != InstallRequested {
		t.Fatalf("status after reinstall = %v, want INSTALL_REQUESTED", status)
	}
}

func TestReinstallNeedsRescope(t *testing.T) {
	ctx := context.Background()
	m, st := testMachine(t)
	const shop = "rescope.myshopify.com"

	rec, _ := m.RequestInstall(ctx, shop)
	if err := m.ConfirmInstallation(ctx, shop, rec.Nonce, "tok"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Installed without the flag: reinstall rejected.
	if _, err := m.RequestReinstall(ctx, shop); !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("err = %v, want ErrAlreadyInstalled", err)
	}

	st.recs[shop].NeedsRescope = true
	re, err := m.RequestReinstall(ctx, shop)
	if err != nil {
		t.Fatalf("RequestReinstall with rescope: %v", err)
	}
	if re.NeedsRescope {
		t.Error("needs_rescope not cleared")
	}
}

func TestUpdateBillingReferenceRequiresInstalled(t *testing.T) {
	ctx := context.Background()
	m, _ := testMachine(t)
	const shop = "billing.myshopify.com"

	if _, err := m.RequestInstall(ctx, shop); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := m.UpdateBillingReference(ctx, shop, 42); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("err = %v, want ErrNotInstalled", err)
	}
}
