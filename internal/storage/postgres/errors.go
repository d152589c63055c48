package postgres

import (
	"errors"
	"fmt"
	"strings"

	"kasa-backend/internal/cashsession"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE kodları. KS0xx migration'lardaki fonksiyonların kendi hataları.
const (
	codeUndefinedFunction = "42883"
	codeInsufficientPriv  = "42501"
	codeUniqueViolation   = "23505"
	codeRaiseException    = "P0001"
	codeNoDataFound       = "P0002"
	codeAlreadyOpen       = "KS001"
	codeAlreadyClosed     = "KS002"
	codeBlockersPresent   = "KS003"
	codeBalanceChanged    = "KS004"
)

// classifyError sürücü hatasını cashsession.StoreError'a çevirir. Tür sadece burada
// belirlenir; çekirdek mesaj metnine bakmaz.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUndefinedFunction:
			return cashsession.NewStoreError(op, cashsession.KindNotImplemented, err)
		case codeInsufficientPriv:
			return cashsession.NewStoreError(op, cashsession.KindPermissionDenied, err)
		case codeAlreadyOpen, codeUniqueViolation:
			return cashsession.NewStoreError(op, cashsession.KindBusinessRejection,
				fmt.Errorf("%w: %s", cashsession.ErrAlreadyOpen, pgErr.Message))
		case codeAlreadyClosed:
			return cashsession.NewStoreError(op, cashsession.KindBusinessRejection,
				fmt.Errorf("%w: %s", cashsession.ErrAlreadyClosed, pgErr.Message))
		case codeBlockersPresent:
			return cashsession.NewStoreError(op, cashsession.KindBusinessRejection,
				fmt.Errorf("%w: %s", cashsession.ErrBlockersPresent, pgErr.Message))
		case codeBalanceChanged:
			return cashsession.NewStoreError(op, cashsession.KindBusinessRejection,
				fmt.Errorf("%w: %s", cashsession.ErrBalanceChanged, pgErr.Message))
		case codeRaiseException:
			return cashsession.NewStoreError(op, cashsession.KindBusinessRejection, err)
		}
		return cashsession.NewStoreError(op, cashsession.KindUnknown, err)
	}

	// sqlite (testler ve yerel geliştirme) SQLSTATE taşımaz
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such function"),
		strings.Contains(msg, "no such table-valued function"),
		strings.Contains(msg, "no such table: pg_"),
		strings.Contains(msg, "no such table: "+op):
		return cashsession.NewStoreError(op, cashsession.KindNotImplemented, err)
	case strings.Contains(msg, "UNIQUE constraint failed") &&
		(strings.Contains(msg, "cash_sessions") || strings.Contains(msg, "idx_cash_sessions_one_open")):
		return cashsession.NewStoreError(op, cashsession.KindBusinessRejection,
			fmt.Errorf("%w: %s", cashsession.ErrAlreadyOpen, msg))
	}
	return cashsession.NewStoreError(op, cashsession.KindUnknown, err)
}

// noDataFound kapanış fonksiyonunun satırı bulamadığını bildirir.
func noDataFound(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeNoDataFound
}
