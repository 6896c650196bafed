package ledger

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/pullstream-backend/pkg/clock"
	"github.com/angelmondragon/pullstream-backend/pkg/config"
)

// NewTransferer picks the custody backend named by cfg.Mode.
func NewTransferer(cfg config.LedgerConfig, clk clock.Clock) (Transferer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case config.LedgerModeSandbox, "":
		return NewSandbox(clk), nil
	case config.LedgerModeHTTP:
		return NewHTTPClient(cfg.BaseURL, WithAPIKey(cfg.APIKey), WithTimeout(cfg.Timeout))
	default:
		return nil, fmt.Errorf("unsupported ledger mode %q", cfg.Mode)
	}
}
