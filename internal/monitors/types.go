package monitors

// Monitor is the subset of a ZoneMinder monitor definition the client uses.
// The API encodes every scalar as a string.
type Monitor struct {
	ID        string   `json:"Id"`
	Name      string   `json:"Name"`
	ServerID  string   `json:"ServerId"`
	StorageID string   `json:"StorageId"`
	Type      string   `json:"Type"`
	Function  Function `json:"Function"`
	Enabled   string   `json:"Enabled"`
	Width     string   `json:"Width"`
	Height    string   `json:"Height"`
	MaxFPS    string   `json:"MaxFPS"`
	GroupIDs  []string `json:"GroupIds,omitempty"`
}

// Function is the monitor's capture/analysis mode.
type Function string

const (
	FunctionNone    Function = "None"
	FunctionMonitor Function = "Monitor"
	FunctionModect  Function = "Modect"
	FunctionRecord  Function = "Record"
	FunctionMocord  Function = "Mocord"
	FunctionNodect  Function = "Nodect"
)

// Status is the live capture status of a monitor.
type Status struct {
	MonitorID        string `json:"MonitorId"`
	Status           string `json:"Status"`
	CaptureFPS       string `json:"CaptureFPS"`
	AnalysisFPS      string `json:"AnalysisFPS"`
	CaptureBandwidth string `json:"CaptureBandwidth"`
}

// WithStatus pairs a monitor with its last reported status.
type WithStatus struct {
	Monitor Monitor `json:"Monitor"`
	Status  Status  `json:"Monitor_Status"`
}

// Group is a named set of monitors.
type Group struct {
	ID         string  `json:"Id"`
	Name       string  `json:"Name"`
	ParentID   *string `json:"ParentId"`
	MonitorIDs string  `json:"MonitorIds,omitempty"`
}

type listResponse struct {
	Monitors []WithStatus `json:"monitors"`
}

type groupsResponse struct {
	Groups []struct {
		Group Group `json:"Group"`
	} `json:"groups"`
}

type daemonStatusResponse struct {
	Monitor struct {
		MonitorStatus *Status `json:"MonitorStatus"`
	} `json:"monitor"`
}
