package models

// Channel describes one measured input or computed output on the device.
// Index 0 is the voltage reference input.
type Channel struct {
	Index int    `json:"-"`
	Name  string `json:"name"`
	Unit  string `json:"unit"`
}

// Datalog describes one of the device's on-flash logs. The "Current" log
// is the live one; its first and last keys bound the available history.
type Datalog struct {
	ID       string `json:"id"`
	FirstKey int64  `json:"firstkey"`
	LastKey  int64  `json:"lastkey"`
	Size     int64  `json:"size"`
	Interval int    `json:"interval"`
}

// DeviceStatus holds the sections of a status query. Only the sections
// that were requested are populated; the rest stay zero. Datalogs is
// typed because the downloader depends on its keys, the other sections
// are kept generic for display.
type DeviceStatus struct {
	Datalogs []Datalog        `json:"datalogs"`
	Inputs   []map[string]any `json:"inputs"`
	Outputs  []map[string]any `json:"outputs"`
	Wifi     map[string]any   `json:"wifi"`
	Stats    map[string]any   `json:"stats"`
}

// CurrentDatalog returns the live datalog, or false if the device did not
// report one.
func (s *DeviceStatus) CurrentDatalog() (Datalog, bool) {
	return CurrentDatalog(s.Datalogs)
}

// CurrentDatalog finds the live datalog in a descriptor list.
func CurrentDatalog(logs []Datalog) (Datalog, bool) {
	for _, dl := range logs {
		if dl.ID == "Current" {
			return dl, true
		}
	}
	return Datalog{}, false
}
