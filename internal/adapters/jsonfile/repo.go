// Package jsonfile keeps the whole record set in one JSON document that is rewritten on every
// mutation. The repository assumes it is the only writer of its file.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/turf-booking-assistant/internal/domain"
)

type document struct {
	Turfs          []domain.Venue   `json:"turfs"`
	Bookings       []domain.Booking `json:"bookings"`
	NextBookingSeq int64            `json:"next_booking_seq"`
}

type Repository struct {
	path string

	mu  sync.RWMutex
	doc document
}

// Open loads path, or starts an empty record set if the file does not exist yet.
func Open(path string) (*Repository, error) {
	r := &Repository{
		path: path,
		doc:  document{Turfs: []domain.Venue{}, Bookings: []domain.Booking{}},
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, domain.Persistence(err, "read store file")
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &r.doc); err != nil {
			return nil, domain.Persistence(err, "decode store file")
		}
	}
	if r.doc.Turfs == nil {
		r.doc.Turfs = []domain.Venue{}
	}
	if r.doc.Bookings == nil {
		r.doc.Bookings = []domain.Booking{}
	}
	r.doc.NextBookingSeq = max(r.doc.NextBookingSeq, nextSeq(r.doc.Bookings))
	return r, nil
}

// nextSeq derives the counter for files written before it was persisted.
func nextSeq(bookings []domain.Booking) int64 {
	highest := int64(len(bookings))
	for _, b := range bookings {
		if n, ok := domain.BookingSeq(b.ID); ok && n > highest {
			highest = n
		}
	}
	return highest + 1
}

func (r *Repository) Path() string {
	return r.path
}

func (r *Repository) Venues(ctx context.Context) ([]domain.Venue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Venue, len(r.doc.Turfs))
	for i, v := range r.doc.Turfs {
		out[i] = v.Clone()
	}
	return out, nil
}

func (r *Repository) UpsertVenue(ctx context.Context, v domain.Venue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.doc
	next.Turfs = slices.Clone(r.doc.Turfs)
	i := slices.IndexFunc(next.Turfs, func(t domain.Venue) bool { return t.ID == v.ID })
	if i >= 0 {
		next.Turfs[i] = v.Clone()
	} else {
		next.Turfs = append(next.Turfs, v.Clone())
	}
	return r.commit(next)
}

func (r *Repository) Bookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.Booking{}
	for _, b := range r.doc.Bookings {
		if filter.Match(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *Repository) Booking(ctx context.Context, id string) (domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.doc.Bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
}

func (r *Repository) InsertBooking(ctx context.Context, build func(seq int64) domain.Booking) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := build(r.doc.NextBookingSeq)
	for _, existing := range r.doc.Bookings {
		if existing.ID == b.ID {
			return domain.Booking{}, errors.Newf("booking id %s already in use", b.ID)
		}
		if b.Status == domain.StatusConfirmed && existing.Holds(b.VenueID, b.Date, b.TimeSlot) {
			return domain.Booking{}, errors.Wrapf(domain.ErrSlotTaken, "%s on %s", b.TimeSlot, b.Date)
		}
	}

	next := r.doc
	next.Bookings = append(slices.Clone(r.doc.Bookings), b)
	next.NextBookingSeq++
	if err := r.commit(next); err != nil {
		return domain.Booking{}, err
	}
	return b, nil
}

func (r *Repository) CancelBooking(ctx context.Context, id string, at time.Time) (domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.doc.Bookings, func(b domain.Booking) bool { return b.ID == id })
	if i < 0 {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}

	next := r.doc
	next.Bookings = slices.Clone(r.doc.Bookings)
	if err := next.Bookings[i].Cancel(at); err != nil {
		return domain.Booking{}, err
	}
	if err := r.commit(next); err != nil {
		return domain.Booking{}, err
	}
	return next.Bookings[i], nil
}

// commit writes doc and only then makes it the in-memory state. Callers hold mu.
func (r *Repository) commit(doc document) error {
	if err := r.write(doc); err != nil {
		return err
	}
	r.doc = doc
	return nil
}

// write replaces the file through a synced temporary file in the same directory, so the file
// on disk is always either the previous or the new document.
func (r *Repository) write(doc document) (err error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return domain.Persistence(err, "encode store file")
	}

	f, err := os.CreateTemp(filepath.Dir(r.path), filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return domain.Persistence(err, "create temp store file")
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return domain.Persistence(err, "write store file")
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return domain.Persistence(err, "sync store file")
	}
	if err = f.Close(); err != nil {
		return domain.Persistence(err, "close store file")
	}
	if err = os.Rename(tmp, r.path); err != nil {
		return domain.Persistence(err, "replace store file")
	}
	return nil
}
