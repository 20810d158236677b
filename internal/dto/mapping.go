package dto

type MappingSuggestion struct {
	LocalKey   string  `json:"localKey"`
	RemoteID   string  `json:"remoteId"`
	RemoteName string  `json:"remoteName"`
	Confidence float64 `json:"confidence"`
}

type MappingValidation struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing"`
}
