package ddns

// RecordID is the provider-assigned identifier of a DNS record.
type RecordID string

// TTLAuto asks the provider to choose the TTL.
const TTLAuto = 1

const recordTypeA = "A"

// Record is the provider's view of a DNS record.
type Record struct {
	ID      RecordID `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Content string   `json:"content"`
	TTL     int      `json:"ttl"`
	Proxied bool     `json:"proxied"`
}
