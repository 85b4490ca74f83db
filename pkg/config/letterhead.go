package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Letterhead holds the static institutional metadata printed on authorization documents.
type Letterhead struct {
	Country     string   `yaml:"country"`
	Motto       string   `yaml:"motto"`
	Ministry    string   `yaml:"ministry"`
	Directorate string   `yaml:"directorate"`
	City        string   `yaml:"city"`
	SignerTitle string   `yaml:"signer_title"`
	FooterLines []string `yaml:"footer_lines"`
}

// DefaultLetterhead is used when no letterhead file is configured.
func DefaultLetterhead() Letterhead {
	return Letterhead{
		Country:     "Republic",
		Motto:       "Unity - Work - Progress",
		Ministry:    "Ministry of Industry",
		Directorate: "General Directorate of Industrial Development",
		City:        "Capital City",
		SignerTitle: "The Minister",
		FooterLines: []string{"This authorization is personal and non-transferable."},
	}
}

// LoadLetterhead reads the YAML letterhead file, falling back to defaults for missing fields.
func LoadLetterhead(path string) (Letterhead, error) {
	lh := DefaultLetterhead()
	if strings.TrimSpace(path) == "" {
		return lh, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return lh, fmt.Errorf("read letterhead: %w", err)
	}
	var parsed Letterhead
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return lh, fmt.Errorf("parse letterhead: %w", err)
	}
	if parsed.Country != "" {
		lh.Country = parsed.Country
	}
	if parsed.Motto != "" {
		lh.Motto = parsed.Motto
	}
	if parsed.Ministry != "" {
		lh.Ministry = parsed.Ministry
	}
	if parsed.Directorate != "" {
		lh.Directorate = parsed.Directorate
	}
	if parsed.City != "" {
		lh.City = parsed.City
	}
	if parsed.SignerTitle != "" {
		lh.SignerTitle = parsed.SignerTitle
	}
	if len(parsed.FooterLines) > 0 {
		lh.FooterLines = parsed.FooterLines
	}
	return lh, nil
}
