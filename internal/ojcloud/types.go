package ojcloud

// Vendor API request/response shapes. Only the fields the synchronizer
// touches are modelled; everything else rides along server-side.

type signInRequest struct {
	APIKey     string `json:"ApiKey"`
	Username   string `json:"UserName"`
	Password   string `json:"Password"`
	CustomerID int    `json:"CustomerId"`
}

type signInResponse struct {
	ErrorCode    int    `json:"ErrorCode"`
	SessionToken string `json:"SessionId"`
}

type groupContentsResponse struct {
	ErrorCode     int     `json:"ErrorCode"`
	GroupContents []Group `json:"GroupContents"`
}

// Group is one vendor group with its thermostats.
type Group struct {
	GroupID     int          `json:"GroupId"`
	GroupName   string       `json:"GroupName"`
	Thermostats []Thermostat `json:"Thermostats"`
}

// Thermostat is the per-device slice of the read payload the core consumes.
// SerialNumber and TimeZone may be omitted on some reads.
type Thermostat struct {
	ID             int    `json:"Id"`
	SerialNumber   string `json:"SerialNumber"`
	ThermostatName string `json:"ThermostatName"`
	Online         bool   `json:"Online"`
	TimeZone       int    `json:"TimeZone"` // fixed UTC offset in seconds
	RegulationMode int    `json:"RegulationMode"`
	ComfortEndTime string `json:"ComfortEndTime"`
	BoostEndTime   string `json:"BoostEndTime"`
}

// SetThermostat is the outbound field set of a device update. The write API
// treats the update as authoritative for every included field, which is why
// callers always carry the display name: omitting it risks wiping it.
// Temperatures are integers in hundredths of a degree; end times are naive
// local-time strings.
type SetThermostat struct {
	SerialNumber        string `json:"SerialNumber"`
	ThermostatName      string `json:"ThermostatName,omitempty"`
	RegulationMode      int    `json:"RegulationMode,omitempty"`
	ComfortSetpoint     *int   `json:"ComfortSetpoint,omitempty"`
	ComfortEndTime      string `json:"ComfortEndTime,omitempty"`
	ManualModeSetpoint  *int   `json:"ManualModeSetpoint,omitempty"`
	BoostEndTime        string `json:"BoostEndTime,omitempty"`
	VacationEnabled     *bool  `json:"VacationEnabled,omitempty"`
	VacationBeginDay    string `json:"VacationBeginDay,omitempty"`
	VacationEndDay      string `json:"VacationEndDay,omitempty"`
	VacationTemperature *int   `json:"VacationTemperature,omitempty"`
}

type updateThermostatRequest struct {
	APIKey        string        `json:"ApiKey"`
	SetThermostat SetThermostat `json:"SetThermostat"`
}

type updateThermostatResponse struct {
	ErrorCode int `json:"ErrorCode"`
}

// Regulation modes the vendor understands.
const (
	RegulationSchedule = 1
	RegulationComfort  = 2
	RegulationManual   = 3
	RegulationBoost    = 8
	RegulationEco      = 9
)

// Int returns a pointer to v, for optional SetThermostat fields.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for optional SetThermostat fields.
func Bool(v bool) *bool { return &v }
