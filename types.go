package woodchuck

import "math"

// NeverUpdated is the freshness value indicating a stream is never
// updated.
const NeverUpdated uint32 = math.MaxUint32

// Sentinels for "value not known" in status reports. The daemon's wire
// protocol reserves the maximum unsigned value for unknown.
const (
	UnknownUint32 uint32 = math.MaxUint32
	UnknownUint64 uint64 = math.MaxUint64
)

// RequestType says who initiated a transfer request.
type RequestType uint32

const (
	// UserInitiated marks a transfer requested by the user.
	UserInitiated RequestType = 0
	// ApplicationInitiated marks a transfer requested by the
	// application.
	ApplicationInitiated RequestType = 1
)

// TransferStatus reports the outcome of a stream update or object
// transfer.
type TransferStatus uint32

const (
	// StatusSuccess means the operation succeeded.
	StatusSuccess TransferStatus = 0

	// StatusTransientOther is an unspecified transient error.
	StatusTransientOther TransferStatus = 0x100
	// StatusTransientNetwork is a transient network error, e.g. the
	// host was unreachable.
	StatusTransientNetwork TransferStatus = 0x101
	// StatusTransientInterrupted means the transfer was interrupted.
	StatusTransientInterrupted TransferStatus = 0x102

	// StatusFailureOther is an unspecified hard error; do not retry.
	StatusFailureOther TransferStatus = 0x200
	// StatusFailureGone means the object is gone.
	StatusFailureGone TransferStatus = 0x201
)

// String returns a short name for the status.
func (s TransferStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusTransientOther:
		return "transient"
	case StatusTransientNetwork:
		return "transient_network"
	case StatusTransientInterrupted:
		return "transient_interrupted"
	case StatusFailureOther:
		return "failure"
	case StatusFailureGone:
		return "failure_gone"
	default:
		return "unknown"
	}
}

// Indicator is a bit mask describing how the user was notified of an
// update or transfer.
type Indicator uint32

const (
	IndicatorAudio              Indicator = 0x1
	IndicatorApplicationVisual  Indicator = 0x2
	IndicatorDesktopSmallVisual Indicator = 0x4
	IndicatorDesktopLargeVisual Indicator = 0x8
	IndicatorExternalVisual     Indicator = 0x10
	IndicatorVibrate            Indicator = 0x20

	IndicatorObjectSpecific Indicator = 0x40
	IndicatorStreamWide     Indicator = 0x80
	IndicatorManagerWide    Indicator = 0x100

	// IndicatorUnknown means it is not known whether an indicator was
	// shown.
	IndicatorUnknown Indicator = 0x80000000
)

// DeletionPolicy says who may delete an object's files.
type DeletionPolicy uint32

const (
	// DeletePrecious: only the user deletes the file.
	DeletePrecious DeletionPolicy = 0
	// DeleteWithoutConsultation: the daemon may delete the file
	// without asking.
	DeleteWithoutConsultation DeletionPolicy = 1
	// DeleteWithConsultation: the daemon may ask the application to
	// delete the file.
	DeleteWithConsultation DeletionPolicy = 2
)

// DeletionResponse is the application's answer to a deletion request.
type DeletionResponse uint32

const (
	// DeletionDeleted: the files were deleted.
	DeletionDeleted DeletionResponse = 0
	// DeletionRefused: the application refuses to delete the object.
	// The argument is the minimum number of seconds to preserve it.
	DeletionRefused DeletionResponse = 1
	// DeletionCompressed: the object was shrunk, e.g. attachments
	// dropped but the body kept. The argument is the remaining size in
	// bytes.
	DeletionCompressed DeletionResponse = 2
)

// Version is one alternative representation of an object. Field order
// matches the daemon's wire struct (sxttub).
type Version struct {
	// URL locates the version's data.
	URL string
	// ExpectedSize is the expected on-disk size delta; negative if
	// transferring frees space.
	ExpectedSize int64
	// ExpectedTransferUp is the expected number of bytes uploaded.
	ExpectedTransferUp uint64
	// ExpectedTransferDown is the expected number of bytes downloaded.
	ExpectedTransferDown uint64
	// Utility is the version's relative utility.
	Utility uint32
	// UseSimpleTransferer requests the daemon's built-in transferer.
	UseSimpleTransferer bool
}

// VersionEvent is a Version qualified by its index in the object's
// version list, as delivered in upcalls (wire struct (usxttub)).
type VersionEvent struct {
	Index                uint32
	URL                  string
	ExpectedSize         int64
	ExpectedTransferUp   uint64
	ExpectedTransferDown uint64
	Utility              uint32
	UseSimpleTransferer  bool
}

// FileReport describes one file belonging to an object in a transfer
// report (wire struct (sbu)).
type FileReport struct {
	// Filename is the absolute path of the file.
	Filename string
	// Exclusive is true if the file belongs only to this object.
	Exclusive bool
	// DeletionPolicy says who may delete the file.
	DeletionPolicy DeletionPolicy
}

// UpdateReport carries the optional details of a stream update report.
// The zero value of a field does NOT mean unknown; use NewUpdateReport
// to start from all-unknown and fill in what you measured.
type UpdateReport struct {
	Indicator        Indicator
	TransferredUp    uint64
	TransferredDown  uint64
	TransferTime     uint64
	TransferDuration uint32
	NewObjects       uint32
	UpdatedObjects   uint32
	ObjectsInline    uint32
}

// NewUpdateReport returns a report with every field set to unknown
// (indicator: none).
func NewUpdateReport() *UpdateReport {
	return &UpdateReport{
		TransferredUp:   UnknownUint64,
		TransferredDown: UnknownUint64,
		NewObjects:      UnknownUint32,
		UpdatedObjects:  UnknownUint32,
		ObjectsInline:   UnknownUint32,
	}
}

// TransferReport carries the optional details of an object transfer
// report. Use NewTransferReport to start from all-unknown.
type TransferReport struct {
	Indicator        Indicator
	TransferredUp    uint64
	TransferredDown  uint64
	TransferTime     uint64
	TransferDuration uint32
	ObjectSize       uint64
	Files            []FileReport
}

// NewTransferReport returns a report with every field set to unknown.
// TransferTime of zero is filled with the current time at report time.
func NewTransferReport() *TransferReport {
	return &TransferReport{
		Indicator:       IndicatorUnknown,
		TransferredUp:   UnknownUint64,
		TransferredDown: UnknownUint64,
		ObjectSize:      UnknownUint64,
	}
}
