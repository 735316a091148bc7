package signaling

import "encoding/json"

// AppDataName is the app tag announced in presence broadcasts and
// required on receipt (spec §4.2, §6): "app":"lxst_phone".
const AppDataName = "lxst_phone"

// AnnounceAppData is the JSON structure carried as a presence announce's
// app_data blob.
type AnnounceAppData struct {
	App         string `json:"app"`
	DisplayName string `json:"display_name"`
}

// BuildAnnounceAppData serializes the app_data blob for an outbound
// presence announce.
func BuildAnnounceAppData(displayName string) ([]byte, error) {
	return json.Marshal(AnnounceAppData{App: AppDataName, DisplayName: displayName})
}

// ParseAnnounceAppData decodes an inbound app_data blob. The caller must
// still check App == AppDataName before trusting the result; ok reports
// whether the bytes were valid JSON matching the expected shape at all.
func ParseAnnounceAppData(data []byte) (AnnounceAppData, bool) {
	var a AnnounceAppData
	if err := json.Unmarshal(data, &a); err != nil {
		return AnnounceAppData{}, false
	}
	return a, true
}
