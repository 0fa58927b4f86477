package identity

import (
	"strings"

	"github.com/mssola/useragent"
)

const (
	deviceDesktop = "desktop"
	deviceMobile  = "mobile"
	deviceBot     = "bot"
	deviceUnknown = "unknown"
)

// describeDevice classifies the user agent a session was issued to.
func describeDevice(s *Session) Device {
	d := Device{
		ID:         s.ID,
		DeviceType: deviceUnknown,
		IP:         s.Location.IP,
		Location:   formatLocation(s.Location),
		ExpiresAt:  s.ExpiresAt,
	}

	raw := strings.TrimSpace(s.Location.UserAgent)
	if raw == "" {
		return d
	}

	ua := useragent.New(raw)
	switch {
	case ua.Bot():
		d.DeviceType = deviceBot
	case ua.Mobile():
		d.DeviceType = deviceMobile
	default:
		d.DeviceType = deviceDesktop
	}
	if name, version := ua.Browser(); name != "" {
		d.Browser = strings.TrimSpace(name + " " + version)
	}
	d.OS = ua.OS()
	return d
}

// formatLocation renders "City, Region, Country", skipping blank parts.
func formatLocation(loc Location) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{loc.City, loc.Region, loc.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
