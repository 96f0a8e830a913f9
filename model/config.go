package model

import "time"

const AppName = "exportd"

// AgentConfig configures the HTTP agent.
type AgentConfig struct {
	ExportsFile       string        `env:"EXPORTD_EXPORTS_FILE" envDefault:"/etc/exports.d/zfs.exports"`
	ExportfsBin       string        `env:"EXPORTD_EXPORTFS_BIN" envDefault:"exportfs"`
	ListenAddr        string        `env:"EXPORTD_LISTEN_ADDR" envDefault:":8080"`
	Token             string        `env:"EXPORTD_TOKEN"`
	TLSCert           string        `env:"EXPORTD_TLS_CERT"`
	TLSKey            string        `env:"EXPORTD_TLS_KEY"`
	ReconcileInterval time.Duration `env:"EXPORTD_RECONCILE_INTERVAL" envDefault:"10m"`
}

// CLIConfig configures the one-shot CLI commands.
type CLIConfig struct {
	ExportsFile string `env:"EXPORTD_EXPORTS_FILE" envDefault:"/etc/exports.d/zfs.exports"`
	ExportfsBin string `env:"EXPORTD_EXPORTFS_BIN" envDefault:"exportfs"`
}
