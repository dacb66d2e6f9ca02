package woodchuck

import (
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/ralic/gnu-woodchuck/busclient"
	"github.com/ralic/gnu-woodchuck/metric"
)

// ObjectTransferredEvent describes a completed transfer performed by
// the daemon on the application's behalf.
type ObjectTransferredEvent struct {
	ManagerUUID   string
	ManagerCookie string
	StreamUUID    string
	StreamCookie  string
	ObjectUUID    string
	ObjectCookie  string
	Status        TransferStatus
	Instance      uint32
	Version       VersionEvent
	Filename      string
	Size          uint64
	TriggerTarget uint64
	TriggerFired  uint64
}

// StreamUpdateEvent asks the application to refresh a stream's object
// registrations.
type StreamUpdateEvent struct {
	ManagerUUID   string
	ManagerCookie string
	StreamUUID    string
	StreamCookie  string
}

// ObjectTransferEvent asks the application to transfer an object
// itself (objects not using the simple transferer).
type ObjectTransferEvent struct {
	ManagerUUID   string
	ManagerCookie string
	StreamUUID    string
	StreamCookie  string
	ObjectUUID    string
	ObjectCookie  string
	Version       VersionEvent
	Filename      string
	Quality       uint32
}

// ObjectDeleteFilesEvent asks the application to release an object's
// storage. Answer with Object.FilesDeleted.
type ObjectDeleteFilesEvent struct {
	ManagerUUID   string
	ManagerCookie string
	StreamUUID    string
	StreamCookie  string
	ObjectUUID    string
	ObjectCookie  string
}

// UpcallHandler receives daemon-initiated notifications. Methods run
// on the bus dispatch goroutine; hand work off rather than blocking.
type UpcallHandler interface {
	ObjectTransferred(ObjectTransferredEvent)
	StreamUpdate(StreamUpdateEvent)
	ObjectTransfer(ObjectTransferEvent)
	ObjectDeleteFiles(ObjectDeleteFilesEvent)
}

// NopUpcallHandler ignores every upcall. Embed it to implement only
// the notifications an application cares about.
type NopUpcallHandler struct{}

func (NopUpcallHandler) ObjectTransferred(ObjectTransferredEvent) {}
func (NopUpcallHandler) StreamUpdate(StreamUpdateEvent)           {}
func (NopUpcallHandler) ObjectTransfer(ObjectTransferEvent)       {}
func (NopUpcallHandler) ObjectDeleteFiles(ObjectDeleteFilesEvent) {}

// UpcallServer exports the upcall interface on the application's
// connection and dispatches authenticated upcalls to a handler.
// Messages from any sender other than the daemon's current unique name
// are dropped without a fault.
type UpcallServer struct {
	c       *busclient.Client
	handler UpcallHandler
	logger  *slog.Logger
	metrics *metric.Metrics
	path    dbus.ObjectPath
}

// NewUpcallServer exports the upcall methods at path and begins
// tracking the daemon's bus name so senders can be authenticated. A nil
// handler disables the server: nothing is exported and no daemon state
// is touched. Returns ErrUnavailable (wrapped) when the daemon is not
// running.
func NewUpcallServer(c *busclient.Client, path dbus.ObjectPath, handler UpcallHandler) (*UpcallServer, error) {
	s := &UpcallServer{
		c:       c,
		handler: handler,
		logger:  c.Logger().With("component", "upcall"),
		metrics: c.Metrics(),
		path:    path,
	}
	if handler == nil {
		return s, nil
	}
	if err := c.WatchOwner(); err != nil {
		return nil, err
	}
	if err := c.Export(s, path); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the object path the server is exported at.
func (s *UpcallServer) Path() dbus.ObjectPath { return s.path }

func (s *UpcallServer) accept(sender dbus.Sender, kind string) bool {
	ok := s.c.IsDaemon(string(sender))
	if !ok {
		s.logger.Warn("upcall from unexpected sender ignored",
			"kind", kind, "sender", string(sender))
	}
	s.metrics.RecordUpcall(kind, ok)
	return ok
}

// ObjectTransferred handles org.woodchuck.upcall.ObjectTransferred.
func (s *UpcallServer) ObjectTransferred(sender dbus.Sender,
	managerUUID, managerCookie, streamUUID, streamCookie,
	objectUUID, objectCookie string,
	status uint32, instance uint32,
	version VersionEvent,
	filename string, size uint64,
	triggerTarget, triggerFired uint64) *dbus.Error {
	if !s.accept(sender, "ObjectTransferred") {
		return nil
	}
	s.handler.ObjectTransferred(ObjectTransferredEvent{
		ManagerUUID:   managerUUID,
		ManagerCookie: managerCookie,
		StreamUUID:    streamUUID,
		StreamCookie:  streamCookie,
		ObjectUUID:    objectUUID,
		ObjectCookie:  objectCookie,
		Status:        TransferStatus(status),
		Instance:      instance,
		Version:       version,
		Filename:      filename,
		Size:          size,
		TriggerTarget: triggerTarget,
		TriggerFired:  triggerFired,
	})
	return nil
}

// StreamUpdate handles org.woodchuck.upcall.StreamUpdate.
func (s *UpcallServer) StreamUpdate(sender dbus.Sender,
	managerUUID, managerCookie, streamUUID, streamCookie string) *dbus.Error {
	if !s.accept(sender, "StreamUpdate") {
		return nil
	}
	s.handler.StreamUpdate(StreamUpdateEvent{
		ManagerUUID:   managerUUID,
		ManagerCookie: managerCookie,
		StreamUUID:    streamUUID,
		StreamCookie:  streamCookie,
	})
	return nil
}

// ObjectTransfer handles org.woodchuck.upcall.ObjectTransfer.
func (s *UpcallServer) ObjectTransfer(sender dbus.Sender,
	managerUUID, managerCookie, streamUUID, streamCookie,
	objectUUID, objectCookie string,
	version VersionEvent,
	filename string, quality uint32) *dbus.Error {
	if !s.accept(sender, "ObjectTransfer") {
		return nil
	}
	s.handler.ObjectTransfer(ObjectTransferEvent{
		ManagerUUID:   managerUUID,
		ManagerCookie: managerCookie,
		StreamUUID:    streamUUID,
		StreamCookie:  streamCookie,
		ObjectUUID:    objectUUID,
		ObjectCookie:  objectCookie,
		Version:       version,
		Filename:      filename,
		Quality:       quality,
	})
	return nil
}

// ObjectDeleteFiles handles org.woodchuck.upcall.ObjectDeleteFiles.
func (s *UpcallServer) ObjectDeleteFiles(sender dbus.Sender,
	managerUUID, managerCookie, streamUUID, streamCookie,
	objectUUID, objectCookie string) *dbus.Error {
	if !s.accept(sender, "ObjectDeleteFiles") {
		return nil
	}
	s.handler.ObjectDeleteFiles(ObjectDeleteFilesEvent{
		ManagerUUID:   managerUUID,
		ManagerCookie: managerCookie,
		StreamUUID:    streamUUID,
		StreamCookie:  streamCookie,
		ObjectUUID:    objectUUID,
		ObjectCookie:  objectCookie,
	})
	return nil
}
