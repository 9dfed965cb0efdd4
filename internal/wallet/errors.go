package wallet

import xerrors "WalletBridge/internal/errors"

// Sentinels for errors.Is; matching is by error code.
var (
	ErrNoProvider       = xerrors.New(xerrors.CodeNoProvider, "")
	ErrUserRejected     = xerrors.New(xerrors.CodeUserRejected, "")
	ErrConnectionFailed = xerrors.New(xerrors.CodeConnectionFailed, "")
	ErrNotConnected     = xerrors.New(xerrors.CodeNotConnected, "")
)
