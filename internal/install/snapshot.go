package install

// State is the phase a run is in, as seen by subscribers.
type State string

const (
	StateIdle         State = "idle"
	StateDownloading  State = "downloading"
	StateTransferring State = "transferring"
	StateConfiguring  State = "configuring"
	StateFinished     State = "finished"
	StateError        State = "error"
	StateCancelled    State = "cancelled"
	StatePaused       State = "paused"
)

// Terminal reports whether no further transitions follow in this run.
func (s State) Terminal() bool {
	switch s {
	case StateFinished, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// Snapshot is the progress record published to subscribers. The JSON shape
// is what UI clients consume.
type Snapshot struct {
	RunID            string  `json:"run_id,omitempty"`
	State            State   `json:"state"`
	Message          string  `json:"message"`
	DownloadPercent  float64 `json:"download_percent"`
	DownloadSpeed    string  `json:"download_speed"`
	ETA              string  `json:"eta"`
	FilesTotal       int     `json:"files_total"`
	FilesTransferred int     `json:"files_transferred"`
	BytesTotal       int64   `json:"bytes_total"`
	BytesTransferred int64   `json:"bytes_transferred"`
	TransferSpeed    string  `json:"transfer_speed"`
	FailedDepots     int     `json:"failed_depots,omitempty"`
}

func idleSnapshot(runID string) Snapshot {
	return Snapshot{
		RunID:   runID,
		State:   StateIdle,
		Message: "Starting...",
		ETA:     etaCalculating,
	}
}
