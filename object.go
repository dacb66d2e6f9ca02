package woodchuck

import (
	"github.com/ralic/gnu-woodchuck/errors"
)

// Object is the proxy for one transferable unit owned by a stream.
type Object struct {
	entity
}

func newObject(w *Woodchuck, uuid string, seed Properties) (*Object, error) {
	e, err := newEntity(w, kindObject, uuid, objectPropertyTable, seed)
	if err != nil {
		return nil, err
	}
	return &Object{entity: e}, nil
}

// Unregister removes the object from the daemon and from the identity
// registry.
func (o *Object) Unregister() error {
	call, err := o.obj.Call("Unregister")
	if err != nil {
		return err
	}
	var removed bool
	if err := call.Store(&removed); err != nil {
		return errors.Wrap(err, "Object", "Unregister", "decode reply")
	}
	if removed {
		o.w.reg.removeObject(o.uuid)
	}
	return nil
}

// Transfer asks the daemon to transfer the object. Only meaningful for
// objects using the daemon's simple transferer.
func (o *Object) Transfer(requestType RequestType) error {
	_, err := o.obj.Call("Transfer", uint32(requestType))
	return err
}

// TransferStatus reports that the object was transferred (or the
// attempt failed). Call it after every transfer, not only ones
// requested through an upcall. A nil report means every detail is
// unknown; a zero TransferTime is filled with the current time.
func (o *Object) TransferStatus(status TransferStatus, report *TransferReport) error {
	if report == nil {
		report = NewTransferReport()
	}
	transferTime := report.TransferTime
	if transferTime == 0 {
		transferTime = uint64(o.w.c.Clock().Now().Unix())
	}
	files := report.Files
	if files == nil {
		files = []FileReport{}
	}
	_, err := o.obj.Call("TransferStatus",
		uint32(status),
		uint32(report.Indicator),
		report.TransferredUp,
		report.TransferredDown,
		transferTime,
		report.TransferDuration,
		report.ObjectSize,
		files,
	)
	return err
}

// Used marks the object as used. start of zero means now; pass
// UnknownUint64 for an unknown duration or use mask. The least
// significant bit of useMask covers the first 1/64th of the object.
func (o *Object) Used(start, duration, useMask uint64) error {
	if start == 0 {
		start = uint64(o.w.c.Clock().Now().Unix())
	}
	_, err := o.obj.Call("Used", start, duration, useMask)
	return err
}

// FilesDeleted answers a deletion request (and should also be called
// for spontaneous deletions). The meaning of arg depends on response:
// ignored for DeletionDeleted, minimum seconds to preserve for
// DeletionRefused, remaining byte count for DeletionCompressed.
func (o *Object) FilesDeleted(response DeletionResponse, arg uint64) error {
	if response == DeletionDeleted {
		arg = 0
	}
	_, err := o.obj.Call("FilesDeleted", uint32(response), arg)
	return err
}
