package ddns

import (
	"context"
	"net/netip"
)

// Resolver looks up the public IPv4 address that the record should point at.
type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// RecordStore reads and writes a single A record in a provider zone.
//
// The provider addresses records by an opaque id rather than by name,
// so an id lookup is required before any write.
type RecordStore interface {
	// ReadRecord returns the first A record matching name in provider order.
	ReadRecord(ctx context.Context, zoneID, name string) (Record, error)

	// FindRecordID returns the id of the first record of any type matching name.
	FindRecordID(ctx context.Context, zoneID, name string) (RecordID, error)

	// WriteRecord sets the content of the identified A record.
	WriteRecord(ctx context.Context, zoneID string, id RecordID, name, content string) error
}
