package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Keys of the required settings fields.
const (
	SettingPlateRows         = "plate_n_rows"
	SettingPlateCols         = "plate_n_cols"
	SettingRunningOptions    = "running_options"
	SettingLastSubmissionDay = "last_submission_day"
)

// RequiredSettingKeys lists the fields every settings update must carry, in
// the order they are checked.
var RequiredSettingKeys = []string{
	SettingPlateRows,
	SettingPlateCols,
	SettingRunningOptions,
	SettingLastSubmissionDay,
}

// MaxPlateRows is the number of row letters available for slot labels.
const MaxPlateRows = 26

// Settings is the typed view of a settings version. Extra carries any keys
// outside the required set so they survive a read-modify-write cycle.
type Settings struct {
	PlateRows         int
	PlateCols         int
	RunningOptions    []string
	LastSubmissionDay int
	Extra             map[string]any
}

// DefaultSettingsValues returns the payload used when no settings exist and to
// backfill keys missing from older versions.
func DefaultSettingsValues() map[string]any {
	return map[string]any{
		SettingPlateRows:         8,
		SettingPlateCols:         12,
		SettingRunningOptions:    []string{"dna_r9.4.1_450bps_sup.cfg", "dna_r9.4.1_480bps_sup.cfg"},
		SettingLastSubmissionDay: 3,
	}
}

// DefaultSettings returns the typed defaults.
func DefaultSettings() Settings {
	s, err := settingsFromValues(DefaultSettingsValues())
	if err != nil {
		panic(fmt.Errorf("default settings: %w", err))
	}
	return s
}

// MaxSamples is the number of plate slots available per week.
func (s Settings) MaxSamples() int {
	return s.PlateRows * s.PlateCols
}

// AllowsRunningOption reports whether option is one of the configured options.
func (s Settings) AllowsRunningOption(option string) bool {
	for _, o := range s.RunningOptions {
		if o == option {
			return true
		}
	}
	return false
}

// Values flattens the settings back into the wire payload, extra keys included.
func (s Settings) Values() map[string]any {
	out := make(map[string]any, len(s.Extra)+len(RequiredSettingKeys))
	for k, v := range s.Extra {
		out[k] = v
	}
	options := make([]string, len(s.RunningOptions))
	copy(options, s.RunningOptions)
	out[SettingPlateRows] = s.PlateRows
	out[SettingPlateCols] = s.PlateCols
	out[SettingRunningOptions] = options
	out[SettingLastSubmissionDay] = s.LastSubmissionDay
	return out
}

// MarshalJSON renders the flattened payload.
func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// ResolveSettings decodes a stored version, filling any missing required keys
// from the defaults.
func ResolveSettings(values map[string]any) (Settings, error) {
	merged := make(map[string]any, len(values)+len(RequiredSettingKeys))
	for k, v := range DefaultSettingsValues() {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	return settingsFromValues(merged)
}

// ValidateSettingsUpdate checks an incoming payload before it is appended to
// the log. Every required key must be present and well-formed.
func ValidateSettingsUpdate(values map[string]any) (Settings, error) {
	for _, key := range RequiredSettingKeys {
		if _, ok := values[key]; !ok {
			return Settings{}, ValidationError{Message: fmt.Sprintf("Required field %s missing - settings not updated", key)}
		}
	}
	s, err := settingsFromValues(values)
	if err != nil {
		return Settings{}, err
	}
	if s.PlateRows < 1 || s.PlateRows > MaxPlateRows {
		return Settings{}, ValidationError{Message: fmt.Sprintf("%s must be between 1 and %d - settings not updated", SettingPlateRows, MaxPlateRows)}
	}
	if s.PlateCols < 1 {
		return Settings{}, ValidationError{Message: fmt.Sprintf("%s must be at least 1 - settings not updated", SettingPlateCols)}
	}
	if s.LastSubmissionDay < 1 || s.LastSubmissionDay > 7 {
		return Settings{}, ValidationError{Message: fmt.Sprintf("%s must be between 1 and 7 - settings not updated", SettingLastSubmissionDay)}
	}
	return s, nil
}

func settingsFromValues(values map[string]any) (Settings, error) {
	var s Settings
	var ok bool
	if s.PlateRows, ok = intValue(values[SettingPlateRows]); !ok {
		return Settings{}, invalidSettingType(SettingPlateRows, "an integer")
	}
	if s.PlateCols, ok = intValue(values[SettingPlateCols]); !ok {
		return Settings{}, invalidSettingType(SettingPlateCols, "an integer")
	}
	if s.LastSubmissionDay, ok = intValue(values[SettingLastSubmissionDay]); !ok {
		return Settings{}, invalidSettingType(SettingLastSubmissionDay, "an integer")
	}
	if s.RunningOptions, ok = stringsValue(values[SettingRunningOptions]); !ok {
		return Settings{}, invalidSettingType(SettingRunningOptions, "a list of strings")
	}
	for k, v := range values {
		switch k {
		case SettingPlateRows, SettingPlateCols, SettingRunningOptions, SettingLastSubmissionDay:
			continue
		}
		if s.Extra == nil {
			s.Extra = make(map[string]any)
		}
		s.Extra[k] = v
	}
	return s, nil
}

func invalidSettingType(key, want string) error {
	return ValidationError{Message: fmt.Sprintf("Field %s must be %s - settings not updated", key, want)}
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func stringsValue(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}
