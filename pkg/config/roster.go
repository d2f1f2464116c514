package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Roster lists the metered installations and metric codes to collect
type Roster struct {
	Pods      []Pod      `yaml:"pod"`
	OBISCodes []string   `yaml:"obis_codes"`
	Email     EmailBlock `yaml:"email"`
}

// Pod is one metered point of delivery
type Pod struct {
	ID          string   `yaml:"id"`
	Address     string   `yaml:"address"`
	PricePerKWh float64  `yaml:"price_per_kWh"`
	PeakPowerKW float64  `yaml:"peak_power"`
	Latitude    *float64 `yaml:"Latitude"`
	Longitude   *float64 `yaml:"Longitude"`
}

// Name is the display name, falling back to the POD code
func (p Pod) Name() string {
	if p.Address != "" {
		return p.Address
	}
	return p.ID
}

// HasLocation reports whether weather can be looked up for the POD
func (p Pod) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

type EmailBlock struct {
	Recipients RecipientList `yaml:"recipient_email"`
}

// RecipientList accepts a single address, a list of addresses or a list
// of {mail: address} objects and normalizes them to an ordered list.
type RecipientList []string

func (r *RecipientList) UnmarshalYAML(value *yaml.Node) error {
	var out []string
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			break
		}
		out = append(out, value.Value)
	case yaml.SequenceNode:
		for _, item := range value.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				out = append(out, item.Value)
			case yaml.MappingNode:
				var entry struct {
					Mail string `yaml:"mail"`
				}
				if err := item.Decode(&entry); err != nil {
					return fmt.Errorf("line %d: invalid recipient entry: %w", item.Line, err)
				}
				if entry.Mail == "" {
					return fmt.Errorf("line %d: recipient entry without mail key", item.Line)
				}
				out = append(out, entry.Mail)
			default:
				return fmt.Errorf("line %d: unsupported recipient entry", item.Line)
			}
		}
	default:
		return fmt.Errorf("line %d: recipient_email must be a string or a list", value.Line)
	}

	*r = normalizeRecipients(out)
	return nil
}

func normalizeRecipients(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, addr := range in {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr)
	}
	return out
}

// LoadRoster reads and validates the roster file
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster %s: %w", path, err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes roster YAML
func ParseRoster(data []byte) (*Roster, error) {
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	if err := roster.Validate(); err != nil {
		return nil, err
	}
	return &roster, nil
}

func (r *Roster) Validate() error {
	if len(r.Pods) == 0 {
		return fmt.Errorf("no PODs defined in roster")
	}
	if len(r.OBISCodes) == 0 {
		return fmt.Errorf("no OBIS codes defined in roster")
	}
	seen := make(map[string]bool, len(r.Pods))
	for i, pod := range r.Pods {
		if pod.ID == "" {
			return fmt.Errorf("pod #%d has no id", i+1)
		}
		if seen[pod.ID] {
			return fmt.Errorf("pod %s listed twice", pod.ID)
		}
		seen[pod.ID] = true
	}
	return nil
}

// RecipientsOr returns the roster recipients, or fallback when none are listed
func (r *Roster) RecipientsOr(fallback []string) []string {
	if len(r.Email.Recipients) > 0 {
		return r.Email.Recipients
	}
	return normalizeRecipients(fallback)
}
