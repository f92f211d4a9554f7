// Package installs tracks a shop through the install lifecycle. Status is
// never stored: it is derived from the install/uninstall timestamps on the
// shopify_shopifystore row, so the row doubles as an audit trail.
package installs

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"backend/internal/security"
	"backend/internal/store"
)

// Status is the derived installation state of a shop.
type Status int

const (
	NotKnown Status = iota + 1
	InstallRequested
	Installed
	Uninstalled
)

func (s Status) String() string {
	switch s {
	case NotKnown:
		return "NOT_KNOWN"
	case InstallRequested:
		return "INSTALL_REQUESTED"
	case Installed:
		return "INSTALLED"
	case Uninstalled:
		return "UNINSTALLED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

var (
	// ErrAlreadyInstalled rejects install requests for shops that are not
	// NOT_KNOWN/UNINSTALLED.
	ErrAlreadyInstalled = errors.New("app already installed on this shop")
	// ErrNotRequested rejects a callback for a shop that never asked to
	// install (or is past that stage).
	ErrNotRequested = errors.New("shop has not recently requested install")
	// ErrStateMismatch is the authentication failure for a bad OAuth state
	// token; deliberately distinct from not-found conditions.
	ErrStateMismatch = errors.New("invalid state token")
	// ErrNotInstalled rejects operations that require an installed shop.
	ErrNotInstalled = errors.New("shop is not installed")
)

// StatusOf derives the state from a record. The ordering matters:
// install_time is checked before uninstall_time.
func StatusOf(rec *store.ShopRecord) Status {
	switch {
	case rec == nil:
		return NotKnown
	case rec.InstallTime == nil:
		return InstallRequested
	case rec.UninstallTime == nil:
		return Installed
	default:
		return Uninstalled
	}
}

// Store is the persistence the machine needs; Find returns (nil, nil) for
// an unknown shop.
type Store interface {
	Find(ctx context.Context, shopAddress string) (*store.ShopRecord, error)
	Create(ctx context.Context, rec *store.ShopRecord) error
	Save(ctx context.Context, rec *store.ShopRecord) error
}

// Machine applies installation state transitions for shops.
//
// Two concurrent install/reinstall requests for the same shop race
// last-write-wins; webhook platforms retry and the nonce re-binds on each
// attempt, so this is tolerated rather than locked against.
type Machine struct {
	shops  Store
	cipher *security.Cipher
	logger *slog.Logger
	now    func() time.Time
}

func NewMachine(shops Store, cipher *security.Cipher, logger *slog.Logger) *Machine {
	return &Machine{
		shops:  shops,
		cipher: cipher,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Lookup returns the record (nil when absent) and its derived status.
func (m *Machine) Lookup(ctx context.Context, shop string) (*store.ShopRecord, Status, error) {
	rec, err := m.shops.Find(ctx, shop)
	if err != nil {
		return nil, 0, err
	}
	return rec, StatusOf(rec), nil
}

// RequestInstall starts the install flow for a shop we have never seen.
func (m *Machine) RequestInstall(ctx context.Context, shop string) (*store.ShopRecord, error) {
	rec, status, err := m.Lookup(ctx, shop)
	if err != nil {
		return nil, err
	}
	if status != NotKnown {
		return rec, ErrAlreadyInstalled
	}

	rec = &store.ShopRecord{
		ShopAddress: shop,
		Nonce:       newNonce(),
		AskTime:     m.now(),
	}
	if err := m.shops.Create(ctx, rec); err != nil {
		return nil, err
	}
	m.logger.Info("install requested", "shop", shop)
	return rec, nil
}

// RequestReinstall restarts the flow for an uninstalled shop. Also accepted
// for an installed shop flagged needs_rescope, which must re-run OAuth to
// pick up new scopes.
func (m *Machine) RequestReinstall(ctx context.Context, shop string) (*store.ShopRecord, error) {
	rec, status, err := m.Lookup(ctx, shop)
	if err != nil {
		return nil, err
	}
	if status != Uninstalled && !(status == Installed && rec.NeedsRescope) {
		return rec, ErrAlreadyInstalled
	}

	rec.Nonce = newNonce()
	rec.AskTime = m.now()
	rec.InstallTime = nil
	rec.UninstallTime = nil
	rec.AccessToken = nil
	rec.NeedsRescope = false
	rec.RACID = nil
	if err := m.shops.Save(ctx, rec); err != nil {
		return nil, err
	}
	m.logger.Info("reinstall requested", "shop", shop)
	return rec, nil
}

// ConfirmInstallation finishes the OAuth callback: the shop must be in
// INSTALL_REQUESTED and the caller's state token must equal the stored
// nonce exactly. On any rejection install_time stays untouched.
func (m *Machine) ConfirmInstallation(ctx context.Context, shop, state, accessToken string) error {
	rec, status, err := m.Lookup(ctx, shop)
	if err != nil {
		return err
	}
	if status != InstallRequested {
		return ErrNotRequested
	}
	if subtle.ConstantTimeCompare([]byte(state), []byte(rec.Nonce)) != 1 {
		m.logger.Warn("oauth state mismatch", "shop", shop)
		return ErrStateMismatch
	}

	enc, err := m.cipher.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	now := m.now()
	rec.InstallTime = &now
	rec.AccessToken = &enc
	if err := m.shops.Save(ctx, rec); err != nil {
		return err
	}
	m.logger.Info("installation confirmed", "shop", shop)
	return nil
}

// Uninstall marks an installed shop uninstalled and drops its credentials.
func (m *Machine) Uninstall(ctx context.Context, shop string) error {
	rec, status, err := m.Lookup(ctx, shop)
	if err != nil {
		return err
	}
	if status != Installed {
		return ErrNotInstalled
	}

	now := m.now()
	rec.UninstallTime = &now
	rec.AccessToken = nil
	rec.RACID = nil
	if err := m.shops.Save(ctx, rec); err != nil {
		return err
	}
	m.logger.Info("shop uninstalled", "shop", shop)
	return nil
}

// UpdateBillingReference stores the recurring charge id on an installed
// shop. A side-channel update; the status does not change.
func (m *Machine) UpdateBillingReference(ctx context.Context, shop string, racID int64) error {
	rec, status, err := m.Lookup(ctx, shop)
	if err != nil {
		return err
	}
	if status != Installed {
		return ErrNotInstalled
	}

	rec.RACID = &racID
	return m.shops.Save(ctx, rec)
}

// AccessToken decrypts the stored token for an installed shop record.
func (m *Machine) AccessToken(rec *store.ShopRecord) (string, error) {
	if rec == nil || rec.AccessToken == nil {
		return "", ErrNotInstalled
	}
	return m.cipher.Decrypt(*rec.AccessToken)
}

func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
