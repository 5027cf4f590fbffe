package calendar

import "time"

const DefaultZone = "Asia/Kuala_Lumpur"

// LoadZone loads name, falling back to a fixed UTC+8 zone for DefaultZone
// when the host has no tz database.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultZone {
			return time.FixedZone("MYT", 8*60*60), nil
		}
		return nil, err
	}
	return loc, nil
}
