package cashsession

import (
	"errors"
	"fmt"

	"kasa-backend/internal/reconcile"
)

// Sentinel hatalar, errors.Is ile kontrol edilir.
var (
	// doğrulama: store'a hiç gidilmeden reddedilir
	ErrInvalidAmount           = reconcile.ErrInvalidAmount
	ErrReportedBalanceRequired = errors.New("reported closing balance is required")

	// kapanış eşikleri
	ErrConfirmationRequired  = reconcile.ErrConfirmationRequired
	ErrJustificationRequired = reconcile.ErrJustificationRequired
	ErrOverrideRequired      = reconcile.ErrOverrideRequired

	// eşzamanlılık: beklenen ve tekrar denenebilir durumlar
	ErrAlreadyOpen     = errors.New("a cash session is already open for this restaurant")
	ErrAlreadyClosed   = errors.New("cash session already closed")
	ErrCloseInProgress = errors.New("close already in progress")
	ErrOpenInProgress  = errors.New("open already in progress")

	ErrBlockersPresent       = errors.New("cash session has unresolved blockers")
	ErrValidationUnavailable = errors.New("close validation unavailable")
	ErrBalanceUnavailable    = errors.New("expected balance could not be computed")
	ErrBalanceChanged        = errors.New("expected balance changed since it was computed")
	ErrNoOpenSession         = errors.New("no open cash session")
	ErrSessionNotFound       = errors.New("cash session not found")
	ErrForbidden             = errors.New("operation not permitted for this actor")
	ErrCloseUnverified       = errors.New("close could not be verified")
)

// ErrorKind store adaptörünün sınırında belirlenir; çekirdek mesaj metnine bakmaz.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotImplemented
	KindBusinessRejection
	KindPermissionDenied
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotImplemented:
		return "not_implemented"
	case KindBusinessRejection:
		return "business_rejection"
	case KindPermissionDenied:
		return "permission_denied"
	}
	return "unknown"
}

type StoreError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(op string, kind ErrorKind, err error) error {
	return &StoreError{Op: op, Kind: kind, Err: err}
}

// KindOf StoreError değilse KindUnknown döner.
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func IsNotImplemented(err error) bool {
	return KindOf(err) == KindNotImplemented
}

// Code teşhis edilebilir kapanış hatası kodu.
type Code string

const (
	CodeCloseUnverified    Code = "CLOSE_UNVERIFIED"
	CodeOwnershipMismatch  Code = "CLOSE_OWNERSHIP_MISMATCH"
	CodeCashierUnassigned  Code = "CLOSE_CASHIER_UNASSIGNED"
	CodeForceCloseRejected Code = "CLOSE_FORCE_REJECTED"
)

// CloseError kayıt kalıcı olarak kapatılamadığında döner. Oturum yerelde OPEN kalır.
type CloseError struct {
	Code      Code
	SessionID uint
	Detail    string
	Err       error
}

func (e *CloseError) Error() string {
	msg := fmt.Sprintf("close session %d: %s", e.SessionID, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CloseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCloseUnverified, e.Err}
	}
	return []error{ErrCloseUnverified}
}

// BlockersError kapanışı engelleyen açık işler.
type BlockersError struct {
	Blockers []Blocker
}

func (e *BlockersError) Error() string {
	return fmt.Sprintf("%d blocker(s) prevent closing", len(e.Blockers))
}

func (e *BlockersError) Unwrap() error {
	return ErrBlockersPresent
}

// GateError sayım farkının gerektirdiği onay eksik olduğunda döner.
type GateError struct {
	Discrepancy *reconcile.DiscrepancyResult
	Err         error
}

func (e *GateError) Error() string {
	return fmt.Sprintf("discrepancy %s (%d): %v", e.Discrepancy.Tier, e.Discrepancy.Value, e.Err)
}

func (e *GateError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrReportedBalanceRequired)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyOpen) ||
		errors.Is(err, ErrAlreadyClosed) ||
		errors.Is(err, ErrCloseInProgress) ||
		errors.Is(err, ErrOpenInProgress) ||
		errors.Is(err, ErrBalanceChanged)
}

func IsGate(err error) bool {
	return errors.Is(err, ErrConfirmationRequired) ||
		errors.Is(err, ErrJustificationRequired) ||
		errors.Is(err, ErrOverrideRequired)
}
