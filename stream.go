package woodchuck

import (
	"fmt"

	"github.com/ralic/gnu-woodchuck/errors"
)

// Stream is the proxy for one stream: a periodically refreshed feed of
// objects owned by a manager.
type Stream struct {
	entity
}

func newStream(w *Woodchuck, uuid string, seed Properties) (*Stream, error) {
	e, err := newEntity(w, kindStream, uuid, streamPropertyTable, seed)
	if err != nil {
		return nil, err
	}
	return &Stream{entity: e}, nil
}

// Unregister removes the stream. With onlyIfEmpty the daemon refuses
// with ErrObjectExists while the stream still contains objects.
func (s *Stream) Unregister(onlyIfEmpty bool) error {
	call, err := s.obj.Call("Unregister", onlyIfEmpty)
	if err != nil {
		return err
	}
	var removed bool
	if err := call.Store(&removed); err != nil {
		return errors.Wrap(err, "Stream", "Unregister", "decode reply")
	}
	if removed {
		s.w.reg.removeStream(s.uuid)
	}
	return nil
}

// RegisterObject registers an object in this stream.
func (s *Stream) RegisterObject(props Properties, onlyIfCookieUnique bool) (*Object, error) {
	dict, err := wireRegistrationDict(objectPropertyTable, props)
	if err != nil {
		return nil, err
	}
	call, err := s.obj.Call("ObjectRegister", dict, onlyIfCookieUnique)
	if err != nil {
		return nil, err
	}
	var uuid string
	if err := call.Store(&uuid); err != nil {
		return nil, errors.Wrap(err, "Stream", "RegisterObject", "decode reply")
	}

	seed := clone(props)
	seed["UUID"] = uuid
	seed["parent_UUID"] = s.uuid
	return s.w.adoptObject(uuid, seed)
}

// ListObjects lists this stream's objects.
func (s *Stream) ListObjects() ([]*Object, error) {
	call, err := s.obj.Call("ListObjects")
	if err != nil {
		return nil, err
	}
	rows, err := storeRows(call)
	if err != nil {
		return nil, err
	}
	objects := make([]*Object, 0, len(rows))
	for _, row := range rows {
		o, err := s.w.adoptObject(rowString(row, 0), Properties{
			"UUID":                rowString(row, 0),
			"cookie":              rowString(row, 1),
			"human_readable_name": rowString(row, 2),
			"parent_UUID":         s.uuid,
		})
		if err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}
	return objects, nil
}

// LookupObjectByCookie returns this stream's objects carrying cookie.
// An empty result is ErrNoSuchObject.
func (s *Stream) LookupObjectByCookie(cookie string) ([]*Object, error) {
	call, err := s.obj.Call("LookupObjectByCookie", cookie)
	if err != nil {
		return nil, err
	}
	rows, err := storeRows(call)
	if err != nil {
		return nil, err
	}
	objects := make([]*Object, 0, len(rows))
	for _, row := range rows {
		o, err := s.w.adoptObject(rowString(row, 0), Properties{
			"UUID":                rowString(row, 0),
			"cookie":              cookie,
			"human_readable_name": rowString(row, 1),
			"parent_UUID":         s.uuid,
		})
		if err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: no object with cookie %q", errors.ErrNoSuchObject, cookie)
	}
	return objects, nil
}

// ObjectByCookie returns exactly one object carrying cookie. More than
// one match is ErrInternal.
func (s *Stream) ObjectByCookie(cookie string) (*Object, error) {
	objects, err := s.LookupObjectByCookie(cookie)
	if err != nil {
		return nil, err
	}
	if len(objects) > 1 {
		return nil, fmt.Errorf("%w: %d objects with cookie %q", errors.ErrInternal, len(objects), cookie)
	}
	return objects[0], nil
}

// UpdateStatus reports the outcome of a stream update. Call it after
// every update, not only ones requested through an upcall. A nil
// report means every detail is unknown.
func (s *Stream) UpdateStatus(status TransferStatus, report *UpdateReport) error {
	if report == nil {
		report = NewUpdateReport()
	}
	_, err := s.obj.Call("UpdateStatus",
		uint32(status),
		uint32(report.Indicator),
		report.TransferredUp,
		report.TransferredDown,
		report.TransferTime,
		report.TransferDuration,
		report.NewObjects,
		report.UpdatedObjects,
		report.ObjectsInline,
	)
	return err
}
