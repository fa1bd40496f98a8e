package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"meritlend/crypto"
	"meritlend/native/credit"
	"meritlend/native/lending"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk node configuration. Parameter sections fall back to
// protocol defaults through Normalize when left zero-valued.
type Config struct {
	RPCAddress        string           `toml:"RPCAddress"`
	MetricsAddress    string           `toml:"MetricsAddress"`
	AuditDatabasePath string           `toml:"AuditDatabasePath"`
	Admin             string           `toml:"Admin"`
	ScoringAuthority  string           `toml:"ScoringAuthority"`
	PoolCustody       string           `toml:"PoolCustody"`
	EscrowVault       string           `toml:"EscrowVault"`
	EpochSeconds      int64            `toml:"EpochSeconds"`
	Genesis           []GenesisAccount `toml:"Genesis,omitempty"`
	Credit            credit.Params    `toml:"Credit"`
	Lending           lending.Params   `toml:"Lending"`
	Pauses            Pauses           `toml:"Pauses"`
}

// Load loads the configuration from the given path, creating a default file
// with freshly generated role addresses when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(cfg.AuditDatabasePath) == "" {
		cfg.AuditDatabasePath = defaultAuditPath(path)
	}
	if cfg.EpochSeconds <= 0 {
		cfg.EpochSeconds = 3600
	}
	cfg.Credit = cfg.Credit.Normalize()
	cfg.Lending = cfg.Lending.Normalize()

	return cfg, nil
}

// DecodeRoles parses the configured privileged addresses.
func (c *Config) DecodeRoles() (Roles, error) {
	roles := Roles{}
	fields := []struct {
		name  string
		value string
		dst   *crypto.Address
	}{
		{"Admin", c.Admin, &roles.Admin},
		{"ScoringAuthority", c.ScoringAuthority, &roles.ScoringAuthority},
		{"PoolCustody", c.PoolCustody, &roles.PoolCustody},
		{"EscrowVault", c.EscrowVault, &roles.EscrowVault},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			return Roles{}, fmt.Errorf("config: %s address not set", field.name)
		}
		addr, err := crypto.DecodeAddress(field.value)
		if err != nil {
			return Roles{}, fmt.Errorf("config: invalid %s address: %w", field.name, err)
		}
		*field.dst = addr
	}
	return roles, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	admin, err := crypto.NewRandomAddress()
	if err != nil {
		return nil, err
	}
	scoring, err := crypto.NewRandomAddress()
	if err != nil {
		return nil, err
	}
	custody, err := crypto.NewRandomAddress()
	if err != nil {
		return nil, err
	}
	vault, err := crypto.NewRandomAddress()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:        ":8080",
		MetricsAddress:    ":9090",
		AuditDatabasePath: defaultAuditPath(path),
		Admin:             admin.String(),
		ScoringAuthority:  scoring.String(),
		PoolCustody:       custody.String(),
		EscrowVault:       vault.String(),
		EpochSeconds:      3600,
		Credit:            credit.DefaultParams(),
		Lending:           lending.DefaultParams(),
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultAuditPath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "audit.db")
}
