package cli

import "github.com/temirov/codesentry/internal/utils"

const (
	defaultListenAddressConstant = ":8080"
	defaultDatabasePathConstant  = "codesentry.db"
	defaultCloneRootConstant     = "workspaces"
	defaultReadTimeoutConstant   = "15s"
	defaultWriteTimeoutConstant  = "60s"
)

// defaultConfigurationValues supplies the baseline configuration merged below
// configuration files and environment overrides.
func defaultConfigurationValues() map[string]any {
	return map[string]any{
		"common.log_level":      string(utils.LogLevelInfo),
		"common.log_format":     string(utils.LogFormatStructured),
		"server.listen_address": defaultListenAddressConstant,
		"server.database_path":  defaultDatabasePathConstant,
		"server.clone_root":     defaultCloneRootConstant,
		"server.read_timeout":   defaultReadTimeoutConstant,
		"server.write_timeout":  defaultWriteTimeoutConstant,
		"inference.base_url":    "http://localhost:8600",
		"forge.base_url":        "https://api.github.com",
	}
}
