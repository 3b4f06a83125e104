package tor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nao1215/tornago"
)

const controlTimeout = 5 * time.Second

// NewIdentity asks the managed tor to build fresh circuits (SIGNAL NEWNYM).
// Tor rate-limits the signal, so calls closer than ~10s apart are no-ops on
// the Tor side. Only processes launched by this Manager can be controlled,
// because only they use the cookie file written into the data directory.
func (m *Manager) NewIdentity(ctx context.Context) error {
	ctrl, err := m.controlClient()
	if err != nil {
		return err
	}
	defer ctrl.Close() //nolint:errcheck // best effort close

	if err := ctrl.NewIdentity(ctx); err != nil {
		return newError(KindControlFailed, "Manager.NewIdentity", "SIGNAL NEWNYM failed", err)
	}
	m.logger.Info("requested new Tor identity")
	return nil
}

// BootstrapPhase returns tor's status/bootstrap-phase line, for example
// `NOTICE BOOTSTRAP PROGRESS=100 TAG=done SUMMARY="Done"`.
func (m *Manager) BootstrapPhase(ctx context.Context) (string, error) {
	ctrl, err := m.controlClient()
	if err != nil {
		return "", err
	}
	defer ctrl.Close() //nolint:errcheck // best effort close

	phase, err := ctrl.GetInfo(ctx, "status/bootstrap-phase")
	if err != nil {
		return "", newError(KindControlFailed, "Manager.BootstrapPhase", "GETINFO failed", err)
	}
	return phase, nil
}

// controlClient dials and authenticates to the managed process's ControlPort.
func (m *Manager) controlClient() (*tornago.ControlClient, error) {
	m.mu.Lock()
	managed := m.ownership == OwnershipManaged && m.proc != nil && !m.proc.exited()
	controlPort := m.controlPort
	dataDir := m.dataDir
	m.mu.Unlock()

	if !managed {
		return nil, newError(KindNotManaged, "Manager.controlClient", "tor was not launched by onionwatch", nil)
	}

	absDir, err := filepath.Abs(dataDir)
	if err != nil {
		absDir = dataDir
	}
	auth := tornago.ControlAuthFromCookie(filepath.Join(absDir, cookieFileName))
	addr := fmt.Sprintf("%s:%d", localhost, controlPort)

	ctrl, err := tornago.NewControlClient(addr, auth, controlTimeout)
	if err != nil {
		return nil, newError(KindControlFailed, "Manager.controlClient", "failed to dial ControlPort "+addr, err)
	}
	if err := ctrl.Authenticate(); err != nil {
		_ = ctrl.Close() //nolint:errcheck // already failing
		return nil, newError(KindControlFailed, "Manager.controlClient", "ControlPort authentication failed", err)
	}
	return ctrl, nil
}
