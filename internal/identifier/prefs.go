package identifier

import (
	"encoding/xml"
	"errors"
	"fmt"
)

// Preference keys written by the target app. PlayerIDKey is the only
// mandatory one; the rest resolve to NotPresent when absent.
const (
	PlayerIDKey      = "gg_player_id"
	AdvertisingIDKey = "gg_adid"
	DeviceTokenKey   = "gg_device_token"
	AppSetIDKey      = "gg_app_set_id"
)

// ErrPlayerIDMissing is returned when the mandatory primary account
// identifier is absent from the preference file. A backup is never
// persisted without it.
var ErrPlayerIDMissing = errors.New("primary account identifier missing from preferences")

// Set holds the identifiers extracted from the target app's preference
// file. PlayerID is always present; every other field is either the
// extracted value or NotPresent, never "".
type Set struct {
	PlayerID      string
	AdvertisingID string
	DeviceToken   string
	AppSetID      string
}

// Android shared-preference files are a flat <map> of typed entries; only
// the <string> entries carry the identifiers we care about.
type prefsMap struct {
	XMLName xml.Name      `xml:"map"`
	Strings []prefsString `xml:"string"`
}

type prefsString struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// ExtractPrefs parses the target app's shared-preference XML and pulls out
// the known identifier keys. The primary account identifier is mandatory:
// if its key is absent or empty, ErrPlayerIDMissing is returned and the
// caller must not persist anything. Optional keys resolve to NotPresent.
func ExtractPrefs(content []byte) (*Set, error) {
	var m prefsMap
	if err := xml.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("parsing preference file: %w", err)
	}

	values := make(map[string]string, len(m.Strings))
	for _, s := range m.Strings {
		values[s.Name] = s.Value
	}

	if values[PlayerIDKey] == "" {
		return nil, ErrPlayerIDMissing
	}

	return &Set{
		PlayerID:      values[PlayerIDKey],
		AdvertisingID: orNotPresent(values[AdvertisingIDKey]),
		DeviceToken:   orNotPresent(values[DeviceTokenKey]),
		AppSetID:      orNotPresent(values[AppSetIDKey]),
	}, nil
}

func orNotPresent(v string) string {
	if v == "" {
		return NotPresent
	}
	return v
}
