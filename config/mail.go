package config

import "strings"

// MailConfig describes the SMTP relay that delivers sign-in links.
type MailConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT"     envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
	Subject  string `env:"SUBJECT"`
}

// Sanitize trims addresses.
func (m *MailConfig) Sanitize() {
	m.Host = strings.TrimSpace(m.Host)
	m.From = strings.TrimSpace(m.From)
	if m.Port <= 0 {
		m.Port = 587
	}
}

// Enabled reports whether a relay is configured.
func (m *MailConfig) Enabled() bool {
	return m.Host != "" && m.From != ""
}
