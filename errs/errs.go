// Package errs defines the closed error taxonomy shared by the wire,
// encoder, decoder, and schema packages.
//
// Every fallible operation in those packages returns one of the sentinel
// errors below, classified by a Kind. Callers compare with errors.Is
// against a specific sentinel, or call KindOf to switch on the coarser
// Kind when the specific sentinel doesn't matter. Call sites that need to
// attach context wrap a sentinel with fmt.Errorf("%w: ...", errs.ErrXxx)
// rather than constructing a new error, so errors.Is keeps working through
// the wrap.
package errs

import "errors"

// Kind classifies a sentinel error into one of the categories from the
// error handling design. OK is never returned as an error value; it exists
// so KindOf has a defined zero-ish result for a nil error.
type Kind uint8

const (
	KindOK Kind = iota
	KindBufferFull
	KindAllocFail
	KindTooLarge
	KindDepthExceeded
	KindInvalidMagic
	KindVersionMismatch
	KindTruncated
	KindCRCMismatch
	KindInvalidType
	KindOverflow
	KindMalformed
	KindNullPtr
	KindInvalidArg
	KindInternal
	KindNotFound
	KindTypeMismatch
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindBufferFull:
		return "BUFFER_FULL"
	case KindAllocFail:
		return "ALLOC_FAIL"
	case KindTooLarge:
		return "TOO_LARGE"
	case KindDepthExceeded:
		return "DEPTH_EXCEEDED"
	case KindInvalidMagic:
		return "INVALID_MAGIC"
	case KindVersionMismatch:
		return "VERSION_MISMATCH"
	case KindTruncated:
		return "TRUNCATED"
	case KindCRCMismatch:
		return "CRC_MISMATCH"
	case KindInvalidType:
		return "INVALID_TYPE"
	case KindOverflow:
		return "OVERFLOW"
	case KindMalformed:
		return "MALFORMED"
	case KindNullPtr:
		return "NULL_PTR"
	case KindInvalidArg:
		return "INVALID_ARG"
	case KindInternal:
		return "INTERNAL"
	case KindNotFound:
		return "NOT_FOUND"
	case KindTypeMismatch:
		return "TYPE_MISMATCH"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors, one per closed-taxonomy Kind plus the finer-grained
// conditions each Kind covers. Wrap with fmt.Errorf("%w: ...", ...) to add
// detail; compare with errors.Is to test for a specific failure.
var (
	ErrBufferFull        = errors.New("errs: borrowed buffer exhausted")
	ErrAllocFail         = errors.New("errs: owning buffer cannot grow")
	ErrTooLarge          = errors.New("errs: value exceeds configured maximum")
	ErrMessageTooLarge   = errors.New("errs: message exceeds MAX_MESSAGE")
	ErrStringTooLarge    = errors.New("errs: string exceeds MAX_STRING")
	ErrArrayTooLarge     = errors.New("errs: array or map exceeds MAX_ARRAY")
	ErrDepthExceeded     = errors.New("errs: container nesting exceeds MAX_DEPTH")
	ErrInvalidMagic      = errors.New("errs: frame magic mismatch")
	ErrVersionMismatch   = errors.New("errs: frame version unsupported")
	ErrTruncated         = errors.New("errs: buffer shorter than required")
	ErrCRCMismatch       = errors.New("errs: CRC32 trailer mismatch")
	ErrInvalidType       = errors.New("errs: unknown tag byte")
	ErrOverflow          = errors.New("errs: varint or copy overflow")
	ErrMalformed         = errors.New("errs: malformed container or sentinel")
	ErrNullPtr           = errors.New("errs: nil pointer passed by caller")
	ErrInvalidArg        = errors.New("errs: invalid argument")
	ErrInternal          = errors.New("errs: unreachable state reached")
	ErrNotFound          = errors.New("errs: field not found")
	ErrTypeMismatch      = errors.New("errs: read tag does not match expected type")
	ErrEncoderFinished   = errors.New("errs: encoder already finished")
	ErrDecoderFaulted    = errors.New("errs: decoder is in a faulted state")
	ErrUnbalancedEnd     = errors.New("errs: container end without matching begin")
	ErrSequenceReplayed  = errors.New("errs: sequence number already seen")
	ErrUnknownCompressor = errors.New("errs: unknown compression algorithm")
	ErrDuplicateContent  = errors.New("errs: payload content digest already seen")
)

// kindByErr maps every sentinel above to its Kind for KindOf.
var kindByErr = map[error]Kind{
	ErrBufferFull:        KindBufferFull,
	ErrAllocFail:         KindAllocFail,
	ErrTooLarge:          KindTooLarge,
	ErrMessageTooLarge:   KindTooLarge,
	ErrStringTooLarge:    KindTooLarge,
	ErrArrayTooLarge:     KindTooLarge,
	ErrDepthExceeded:     KindDepthExceeded,
	ErrInvalidMagic:      KindInvalidMagic,
	ErrVersionMismatch:   KindVersionMismatch,
	ErrTruncated:         KindTruncated,
	ErrCRCMismatch:       KindCRCMismatch,
	ErrInvalidType:       KindInvalidType,
	ErrOverflow:          KindOverflow,
	ErrMalformed:         KindMalformed,
	ErrUnbalancedEnd:     KindMalformed,
	ErrNullPtr:           KindNullPtr,
	ErrInvalidArg:        KindInvalidArg,
	ErrInternal:          KindInternal,
	ErrNotFound:          KindNotFound,
	ErrTypeMismatch:      KindTypeMismatch,
	ErrEncoderFinished:   KindInvalidArg,
	ErrDecoderFaulted:    KindInvalidArg,
	ErrSequenceReplayed:  KindMalformed,
	ErrUnknownCompressor: KindInvalidArg,
	ErrDuplicateContent:  KindMalformed,
}

// KindOf classifies err by walking its wrap chain against the known
// sentinels. It returns KindInternal for a non-nil error that doesn't wrap
// any sentinel in this package, and KindOK for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	for sentinel, kind := range kindByErr {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}
