package ledger

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Profile store keys.
const (
	KeyTotalPoints         = "TotalPoints"
	KeyLevel               = "Level"
	KeyCompletedChallenges = "CompletedChallenges"
	KeyBadges              = "Badges"
	KeyCreatedAt           = "CreatedAt"

	actionPrefix = "EcoAction_"

	SuffixHasPhoto          = "HasPhoto"
	SuffixPhotoTimestamp    = "PhotoTimestamp"
	SuffixPhotoLocalPath    = "PhotoLocalPath"
	SuffixLocationValid     = "LocationValid"
	SuffixLatitude          = "Latitude"
	SuffixLongitude         = "Longitude"
	SuffixLocationTimestamp = "LocationTimestamp"
	SuffixCompleted         = "Completed"
	SuffixPhotoPath         = "PhotoPath"
)

// TimestampLayout formats every timestamp written to the profile store.
const TimestampLayout = "2006-01-02 15:04:05"

// ActionKey returns the per-action key EcoAction_<id>_<suffix>.
func ActionKey(actionID, suffix string) string {
	return actionPrefix + actionID + "_" + suffix
}

// FormatTime renders t in UTC with TimestampLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTime parses a TimestampLayout value as UTC.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), time.UTC)
}

// PhotoMirror is the remote copy of a photo record.
type PhotoMirror struct {
	ActionID          string    `json:"action_id"`
	Timestamp         time.Time `json:"timestamp"`
	LocalPath         string    `json:"local_path"`
	LocationValid     bool      `json:"location_valid"`
	HasLocation       bool      `json:"has_location"`
	Latitude          float64   `json:"latitude,omitempty"`
	Longitude         float64   `json:"longitude,omitempty"`
	LocationTimestamp time.Time `json:"location_timestamp,omitempty"`
}

// Fields flattens the mirror to profile store fields.
func (m PhotoMirror) Fields() map[string]string {
	f := map[string]string{
		ActionKey(m.ActionID, SuffixHasPhoto):       "true",
		ActionKey(m.ActionID, SuffixPhotoTimestamp): FormatTime(m.Timestamp),
		ActionKey(m.ActionID, SuffixPhotoLocalPath): m.LocalPath,
		ActionKey(m.ActionID, SuffixLocationValid):  strconv.FormatBool(m.LocationValid),
	}
	if m.HasLocation {
		f[ActionKey(m.ActionID, SuffixLatitude)] = strconv.FormatFloat(m.Latitude, 'f', 6, 64)
		f[ActionKey(m.ActionID, SuffixLongitude)] = strconv.FormatFloat(m.Longitude, 'f', 6, 64)
		f[ActionKey(m.ActionID, SuffixLocationTimestamp)] = FormatTime(m.LocationTimestamp)
	}
	return f
}

// photosFromFields collects every action flagged HasPhoto. Malformed values are dropped.
func photosFromFields(fields map[string]string) []PhotoMirror {
	var out []PhotoMirror
	for key, value := range fields {
		id, ok := actionIDFor(key, SuffixHasPhoto)
		if !ok || value != "true" {
			continue
		}
		m := PhotoMirror{
			ActionID:  id,
			LocalPath: fields[ActionKey(id, SuffixPhotoLocalPath)],
		}
		if ts, err := ParseTime(fields[ActionKey(id, SuffixPhotoTimestamp)]); err == nil {
			m.Timestamp = ts
		}
		m.LocationValid, _ = strconv.ParseBool(fields[ActionKey(id, SuffixLocationValid)])
		lat, errLat := strconv.ParseFloat(fields[ActionKey(id, SuffixLatitude)], 64)
		lon, errLon := strconv.ParseFloat(fields[ActionKey(id, SuffixLongitude)], 64)
		if errLat == nil && errLon == nil {
			m.HasLocation = true
			m.Latitude, m.Longitude = lat, lon
			if ts, err := ParseTime(fields[ActionKey(id, SuffixLocationTimestamp)]); err == nil {
				m.LocationTimestamp = ts
			}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionID < out[j].ActionID })
	return out
}

// completedFromFields returns the action ids whose remote completion flag is set.
func completedFromFields(fields map[string]string) []string {
	var out []string
	for key, value := range fields {
		if id, ok := actionIDFor(key, SuffixCompleted); ok && (value == "true" || value == "1") {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func actionIDFor(key, suffix string) (string, bool) {
	tail := "_" + suffix
	if len(key) <= len(actionPrefix)+len(tail) ||
		!strings.HasPrefix(key, actionPrefix) || !strings.HasSuffix(key, tail) {
		return "", false
	}
	return key[len(actionPrefix) : len(key)-len(tail)], true
}
