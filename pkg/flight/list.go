// Package flight implements a durable doubly linked list of flights.
//
// Each flight in the list owns one node record; nodes name their neighbours
// by ID and a singleton descriptor tracks head, tail and size. Every
// operation reads the descriptor, edits nodes and writes the descriptor back
// inside one store transaction, so the chain is never observed half-linked.
package flight

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"durable-lists/internal/apperr"
)

var tracer = otel.Tracer("durable-lists/pkg/flight")

// List is the flight list engine.
type List struct {
	store Store
}

// NewList creates a List over store.
func NewList(store Store) *List {
	return &List{store: store}
}

// CreateFlight stores a flight without linking it.
func (l *List) CreateFlight(ctx context.Context, f Flight) (*Flight, error) {
	if err := normalize(&f); err != nil {
		return nil, err
	}
	created, err := l.store.CreateFlight(ctx, &f)
	return created, apperr.Store("create flight", err)
}

// Flight returns a stored flight by ID.
func (l *List) Flight(ctx context.Context, id string) (*Flight, error) {
	f, err := l.store.GetFlight(ctx, id)
	return f, apperr.Store("get flight", err)
}

// Flights returns every stored flight, including those not in the list.
func (l *List) Flights(ctx context.Context) ([]Flight, error) {
	flights, err := l.store.ListFlights(ctx)
	return flights, apperr.Store("list flights", err)
}

// Len returns the number of linked flights.
func (l *List) Len(ctx context.Context) (int, error) {
	var n int
	err := l.run(ctx, "len", func(ctx context.Context, tx Tx) error {
		d, err := tx.Descriptor(ctx)
		if err != nil {
			return err
		}
		n = d.Size
		return nil
	})
	return n, err
}

// Add links f at the front when emergency is set and at the back otherwise.
func (l *List) Add(ctx context.Context, f *Flight, emergency bool) (*Flight, error) {
	if emergency {
		return l.InsertFront(ctx, f)
	}
	return l.InsertBack(ctx, f)
}

// InsertFront links f as the new head. A flight without an ID is created in
// the same transaction; an existing one must be detached.
func (l *List) InsertFront(ctx context.Context, f *Flight) (*Flight, error) {
	return l.insert(ctx, "insert_front", f, func(ctx context.Context, tx Tx, d *Descriptor, fl *Flight) error {
		return pushFront(ctx, tx, d, fl)
	})
}

// InsertBack links f as the new tail.
func (l *List) InsertBack(ctx context.Context, f *Flight) (*Flight, error) {
	return l.insert(ctx, "insert_back", f, func(ctx context.Context, tx Tx, d *Descriptor, fl *Flight) error {
		return pushBack(ctx, tx, d, fl)
	})
}

// InsertAt links f so that it ends up at position, 0 <= position <= size.
func (l *List) InsertAt(ctx context.Context, f *Flight, position int) (*Flight, error) {
	check := func(d *Descriptor) error {
		if position < 0 || position > d.Size {
			return apperr.OutOfRange("insert position %d not in [0, %d]", position, d.Size)
		}
		return nil
	}
	return l.insertChecked(ctx, "insert_at", f, check, func(ctx context.Context, tx Tx, d *Descriptor, fl *Flight) error {
		switch position {
		case 0:
			return pushFront(ctx, tx, d, fl)
		case d.Size:
			return pushBack(ctx, tx, d, fl)
		}
		prev, err := nodeAt(ctx, tx, d, position-1)
		if err != nil {
			return err
		}
		return link(ctx, tx, d, fl, prev.ID, prev.NextID)
	}, attribute.Int("flight.position", position))
}

// PeekFront returns the head flight. ok is false when the list is empty.
func (l *List) PeekFront(ctx context.Context) (f *Flight, ok bool, err error) {
	return l.peek(ctx, "peek_front", func(d *Descriptor) string { return d.Head })
}

// PeekBack returns the tail flight. ok is false when the list is empty.
func (l *List) PeekBack(ctx context.Context) (f *Flight, ok bool, err error) {
	return l.peek(ctx, "peek_back", func(d *Descriptor) string { return d.Tail })
}

// RemoveFront unlinks and returns the head flight. The flight row is kept.
func (l *List) RemoveFront(ctx context.Context) (*Flight, error) {
	return l.remove(ctx, "remove_front", popFront)
}

// RemoveBack unlinks and returns the tail flight.
func (l *List) RemoveBack(ctx context.Context) (*Flight, error) {
	return l.remove(ctx, "remove_back", popBack)
}

// RemoveAt unlinks and returns the flight at position, 0 <= position < size.
func (l *List) RemoveAt(ctx context.Context, position int) (*Flight, error) {
	return l.remove(ctx, "remove_at", func(ctx context.Context, tx Tx, d *Descriptor) (*Flight, error) {
		if position < 0 || position >= d.Size {
			return nil, apperr.OutOfRange("no flight at position %d (size %d)", position, d.Size)
		}
		switch position {
		case 0:
			return popFront(ctx, tx, d)
		case d.Size - 1:
			return popBack(ctx, tx, d)
		}
		n, err := nodeAt(ctx, tx, d, position)
		if err != nil {
			return nil, err
		}
		return unlink(ctx, tx, d, n)
	}, attribute.Int("flight.position", position))
}

// Sequence returns the linked flights from head to tail.
func (l *List) Sequence(ctx context.Context) ([]Flight, error) {
	var out []Flight
	err := l.run(ctx, "sequence", func(ctx context.Context, tx Tx) error {
		d, err := tx.Descriptor(ctx)
		if err != nil {
			return err
		}
		out, err = sequence(ctx, tx, d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reorder rebuilds the list in the stable order given by cmp and returns
// the new sequence. Flights keep their identity; only the nodes are replaced.
func (l *List) Reorder(ctx context.Context, cmp func(a, b Flight) int) ([]Flight, error) {
	var out []Flight
	err := l.run(ctx, "reorder", func(ctx context.Context, tx Tx) error {
		d, err := tx.Descriptor(ctx)
		if err != nil {
			return err
		}
		seq, err := sequence(ctx, tx, d)
		if err != nil {
			return err
		}
		if err := tx.DetachAll(ctx); err != nil {
			return err
		}
		if err := tx.DeleteAllNodes(ctx); err != nil {
			return err
		}
		*d = Descriptor{}

		slices.SortStableFunc(seq, cmp)
		for i := range seq {
			if err := pushBack(ctx, tx, d, &seq[i]); err != nil {
				return err
			}
		}
		if err := tx.SaveDescriptor(ctx, d); err != nil {
			return err
		}
		out = seq
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("flight list rebuilt", slog.Int("size", len(out)))
	return out, nil
}

// ReorderBy rebuilds the list using a named criterion from Criteria.
func (l *List) ReorderBy(ctx context.Context, criterion string) ([]Flight, error) {
	cmp, ok := Criteria[criterion]
	if !ok {
		return nil, apperr.Invalid("unknown criterion %q, options: %s", criterion, strings.Join(CriterionNames(), ", "))
	}
	return l.Reorder(ctx, cmp)
}

// Verify walks the chain in both directions and reports every broken
// invariant it finds. A non-nil error means the walk itself failed.
func (l *List) Verify(ctx context.Context) (*Report, error) {
	var rep *Report
	err := l.run(ctx, "verify", func(ctx context.Context, tx Tx) error {
		d, err := tx.Descriptor(ctx)
		if err != nil {
			return err
		}
		rep, err = verify(ctx, tx, d)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

type insertStep func(ctx context.Context, tx Tx, d *Descriptor, fl *Flight) error

func (l *List) insert(ctx context.Context, op string, f *Flight, step insertStep) (*Flight, error) {
	return l.insertChecked(ctx, op, f, nil, step)
}

func (l *List) insertChecked(ctx context.Context, op string, f *Flight, check func(*Descriptor) error, step insertStep, attrs ...attribute.KeyValue) (*Flight, error) {
	if f == nil {
		return nil, apperr.Invalid("flight is required")
	}
	in := *f
	if in.ID == "" {
		if err := normalize(&in); err != nil {
			return nil, err
		}
	}
	var out *Flight
	err := l.run(ctx, op, func(ctx context.Context, tx Tx) error {
		d, err := tx.Descriptor(ctx)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(d); err != nil {
				return err
			}
		}
		fl, err := claim(ctx, tx, &in)
		if err != nil {
			return err
		}
		if err := step(ctx, tx, d, fl); err != nil {
			return err
		}
		if err := tx.SaveDescriptor(ctx, d); err != nil {
			return err
		}
		out = fl
		return nil
	}, attrs...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *List) peek(ctx context.Context, op string, end func(*Descriptor) string) (*Flight, bool, error) {
	var out *Flight
	err := l.run(ctx, op, func(ctx context.Context, tx Tx) error {
		d, err := tx.Descriptor(ctx)
		if err != nil {
			return err
		}
		if d.Size == 0 {
			return nil
		}
		out, err = tx.FlightByNode(ctx, end(d))
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (l *List) remove(ctx context.Context, op string, step func(context.Context, Tx, *Descriptor) (*Flight, error), attrs ...attribute.KeyValue) (*Flight, error) {
	var out *Flight
	err := l.run(ctx, op, func(ctx context.Context, tx Tx) error {
		d, err := tx.Descriptor(ctx)
		if err != nil {
			return err
		}
		fl, err := step(ctx, tx, d)
		if err != nil {
			return err
		}
		if err := tx.SaveDescriptor(ctx, d); err != nil {
			return err
		}
		out = fl
		return nil
	}, attrs...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *List) run(ctx context.Context, op string, fn func(context.Context, Tx) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, "flight."+op)
	defer span.End()
	span.SetAttributes(attrs...)

	err := apperr.Store(op, l.store.InTx(ctx, fn))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// normalize validates a new flight and fills defaults.
func normalize(f *Flight) error {
	f.Code = strings.TrimSpace(f.Code)
	if f.Code == "" {
		return apperr.Invalid("flight code is required")
	}
	if f.Status == "" {
		f.Status = StatusScheduled
	}
	if !ValidStatus(f.Status) {
		return apperr.Invalid("unknown flight status %q", f.Status)
	}
	if f.ScheduledAt.IsZero() {
		f.ScheduledAt = time.Now().UTC()
	}
	f.NodeID = ""
	return nil
}

// claim returns the flight to link: a new one is created, an existing one
// must not already occupy a node.
func claim(ctx context.Context, tx Tx, f *Flight) (*Flight, error) {
	if f.ID == "" {
		return tx.CreateFlight(ctx, f)
	}
	fl, err := tx.Flight(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if fl.Linked() {
		return nil, apperr.Conflict("flight %s is already in the list", fl.Code)
	}
	return fl, nil
}

func pushFront(ctx context.Context, tx Tx, d *Descriptor, fl *Flight) error {
	return link(ctx, tx, d, fl, "", d.Head)
}

func pushBack(ctx context.Context, tx Tx, d *Descriptor, fl *Flight) error {
	return link(ctx, tx, d, fl, d.Tail, "")
}

func popFront(ctx context.Context, tx Tx, d *Descriptor) (*Flight, error) {
	if d.Size == 0 {
		return nil, apperr.Empty("no flights in the list")
	}
	n, err := tx.Node(ctx, d.Head)
	if err != nil {
		return nil, err
	}
	return unlink(ctx, tx, d, n)
}

func popBack(ctx context.Context, tx Tx, d *Descriptor) (*Flight, error) {
	if d.Size == 0 {
		return nil, apperr.Empty("no flights in the list")
	}
	n, err := tx.Node(ctx, d.Tail)
	if err != nil {
		return nil, err
	}
	return unlink(ctx, tx, d, n)
}

// link creates a node for fl between prevID and nextID, either of which may
// be empty to mean the list boundary. It is the only place nodes are
// spliced in.
func link(ctx context.Context, tx Tx, d *Descriptor, fl *Flight, prevID, nextID string) error {
	n := &Node{PrevID: prevID, NextID: nextID}
	if err := tx.CreateNode(ctx, n); err != nil {
		return err
	}

	if prevID == "" {
		d.Head = n.ID
	} else if err := relink(ctx, tx, prevID, func(p *Node) { p.NextID = n.ID }); err != nil {
		return err
	}
	if nextID == "" {
		d.Tail = n.ID
	} else if err := relink(ctx, tx, nextID, func(p *Node) { p.PrevID = n.ID }); err != nil {
		return err
	}
	d.Size++

	if err := tx.SetFlightNode(ctx, fl.ID, n.ID); err != nil {
		return err
	}
	fl.NodeID = n.ID
	return nil
}

// unlink removes n from the chain, deletes it and detaches its flight. It is
// the only place nodes are spliced out.
func unlink(ctx context.Context, tx Tx, d *Descriptor, n *Node) (*Flight, error) {
	fl, err := tx.FlightByNode(ctx, n.ID)
	if err != nil {
		return nil, err
	}

	if n.PrevID == "" {
		d.Head = n.NextID
	} else if err := relink(ctx, tx, n.PrevID, func(p *Node) { p.NextID = n.NextID }); err != nil {
		return nil, err
	}
	if n.NextID == "" {
		d.Tail = n.PrevID
	} else if err := relink(ctx, tx, n.NextID, func(p *Node) { p.PrevID = n.PrevID }); err != nil {
		return nil, err
	}
	d.Size--

	if err := tx.SetFlightNode(ctx, fl.ID, ""); err != nil {
		return nil, err
	}
	if err := tx.DeleteNode(ctx, n.ID); err != nil {
		return nil, err
	}
	fl.NodeID = ""
	return fl, nil
}

func relink(ctx context.Context, tx Tx, id string, edit func(*Node)) error {
	n, err := tx.Node(ctx, id)
	if err != nil {
		return err
	}
	edit(n)
	return tx.SaveNode(ctx, n)
}

// nodeAt walks to position from whichever end is closer.
func nodeAt(ctx context.Context, tx Tx, d *Descriptor, position int) (*Node, error) {
	fromHead := position <= d.Size/2
	id, steps := d.Head, position
	if !fromHead {
		id, steps = d.Tail, d.Size-1-position
	}
	for {
		if id == "" {
			return nil, fmt.Errorf("chain broken before position %d", position)
		}
		n, err := tx.Node(ctx, id)
		if err != nil {
			return nil, err
		}
		if steps == 0 {
			return n, nil
		}
		steps--
		if fromHead {
			id = n.NextID
		} else {
			id = n.PrevID
		}
	}
}

// sequence follows next pointers from the head, never taking more than
// d.Size steps.
func sequence(ctx context.Context, tx Tx, d *Descriptor) ([]Flight, error) {
	out := make([]Flight, 0, d.Size)
	id := d.Head
	for i := 0; i < d.Size && id != ""; i++ {
		n, err := tx.Node(ctx, id)
		if err != nil {
			return nil, err
		}
		fl, err := tx.FlightByNode(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *fl)
		id = n.NextID
	}
	return out, nil
}

func verify(ctx context.Context, tx Tx, d *Descriptor) (*Report, error) {
	rep := &Report{Size: d.Size}
	problem := func(format string, args ...any) {
		rep.Problems = append(rep.Problems, fmt.Sprintf(format, args...))
	}

	if (d.Head == "") != (d.Size == 0) || (d.Tail == "") != (d.Size == 0) {
		problem("descriptor head=%q tail=%q inconsistent with size %d", d.Head, d.Tail, d.Size)
	}

	// Walk at most size+1 nodes each way so a cycle or an overlong chain
	// shows up as a count mismatch instead of an endless loop.
	limit := d.Size + 1
	seen := make(map[string]bool, d.Size)
	prev := ""
	for id := d.Head; id != "" && rep.Forward < limit; rep.Forward++ {
		n, err := tx.Node(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("forward walk at %d: %w", rep.Forward, err)
		}
		if seen[n.ID] {
			problem("node %s revisited at position %d", n.ID, rep.Forward)
			break
		}
		seen[n.ID] = true
		if n.PrevID != prev {
			problem("node %s at position %d: previous is %q, want %q", n.ID, rep.Forward, n.PrevID, prev)
		}
		if _, err := tx.FlightByNode(ctx, n.ID); err != nil {
			problem("node %s at position %d has no flight", n.ID, rep.Forward)
		}
		if n.NextID == "" && n.ID != d.Tail {
			problem("chain ends at %s but tail is %q", n.ID, d.Tail)
		}
		prev, id = n.ID, n.NextID
	}

	next := ""
	for id := d.Tail; id != "" && rep.Backward < limit; rep.Backward++ {
		n, err := tx.Node(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("backward walk at %d: %w", rep.Backward, err)
		}
		if n.NextID != next {
			problem("node %s: next is %q, want %q", n.ID, n.NextID, next)
			break
		}
		if n.PrevID == "" && n.ID != d.Head {
			problem("chain starts at %s but head is %q", n.ID, d.Head)
		}
		next, id = n.ID, n.PrevID
	}

	if rep.Forward != d.Size {
		problem("forward walk visited %d nodes, size is %d", rep.Forward, d.Size)
	}
	if rep.Backward != d.Size {
		problem("backward walk visited %d nodes, size is %d", rep.Backward, d.Size)
	}

	nodes, err := tx.CountNodes(ctx)
	if err != nil {
		return nil, err
	}
	linked, err := tx.LinkedFlights(ctx)
	if err != nil {
		return nil, err
	}
	if nodes != d.Size {
		problem("%d node records stored, size is %d", nodes, d.Size)
	}
	if linked != nodes {
		problem("%d flights linked to %d nodes", linked, nodes)
	}

	rep.Valid = len(rep.Problems) == 0
	if !rep.Valid {
		slog.Warn("flight list integrity check failed",
			slog.Int("size", d.Size),
			slog.Any("problems", rep.Problems))
	}
	return rep, nil
}
