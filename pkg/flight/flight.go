package flight

import (
	"context"
	"time"
)

// Flight statuses.
const (
	StatusScheduled = "scheduled"
	StatusEmergency = "emergency"
	StatusDelayed   = "delayed"
)

// ValidStatus reports whether s is a known flight status.
func ValidStatus(s string) bool {
	switch s {
	case StatusScheduled, StatusEmergency, StatusDelayed:
		return true
	}
	return false
}

// Flight is a stored flight. NodeID is empty while the flight is not linked
// into the list.
type Flight struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Status      string    `json:"status"` // scheduled, emergency, delayed
	ScheduledAt time.Time `json:"scheduled_at"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	NodeID      string    `json:"node_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Linked reports whether the flight currently occupies a list node.
func (f *Flight) Linked() bool {
	return f.NodeID != ""
}

// Node is one list cell. PrevID and NextID are empty at the list boundaries.
type Node struct {
	ID     string `json:"id"`
	PrevID string `json:"prev_id,omitempty"`
	NextID string `json:"next_id,omitempty"`
}

// Descriptor is the singleton record tracking the list's ends and size.
// Head and Tail are empty iff Size is 0.
type Descriptor struct {
	Head string `json:"head,omitempty"`
	Tail string `json:"tail,omitempty"`
	Size int    `json:"size"`
}

// Report is the outcome of an integrity walk.
type Report struct {
	Size     int      `json:"size"`
	Forward  int      `json:"forward"`
	Backward int      `json:"backward"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// Store is the contract for flight persistence.
type Store interface {
	CreateFlight(ctx context.Context, f *Flight) (*Flight, error)
	GetFlight(ctx context.Context, id string) (*Flight, error)
	// ListFlights returns every stored flight, linked or not, oldest first.
	ListFlights(ctx context.Context) ([]Flight, error)

	// InTx runs fn in one transaction: commit when fn returns nil, roll back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	EnsureTable(ctx context.Context) error
}

// Tx is the record access available inside one transaction.
type Tx interface {
	// Descriptor returns the list descriptor, creating it on first access,
	// and holds it for the rest of the transaction.
	Descriptor(ctx context.Context) (*Descriptor, error)
	SaveDescriptor(ctx context.Context, d *Descriptor) error

	// CreateNode inserts n and assigns its ID.
	CreateNode(ctx context.Context, n *Node) error
	Node(ctx context.Context, id string) (*Node, error)
	SaveNode(ctx context.Context, n *Node) error
	DeleteNode(ctx context.Context, id string) error
	DeleteAllNodes(ctx context.Context) error

	CreateFlight(ctx context.Context, f *Flight) (*Flight, error)
	Flight(ctx context.Context, id string) (*Flight, error)
	FlightByNode(ctx context.Context, nodeID string) (*Flight, error)
	// SetFlightNode points a flight at nodeID; "" detaches it.
	SetFlightNode(ctx context.Context, flightID, nodeID string) error
	// DetachAll clears the node reference of every flight.
	DetachAll(ctx context.Context) error
	// LinkedFlights returns how many flights reference a node.
	LinkedFlights(ctx context.Context) (int, error)
	CountNodes(ctx context.Context) (int, error)
}
