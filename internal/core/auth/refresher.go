package auth

import (
	"context"
	"log/slog"

	"github.com/niruse/cuboai/internal/core/api"
)

// Refresher exchanges a refresh token for a new access/refresh pair.
type Refresher struct {
	api   VendorAPI
	store *Store
	log   *slog.Logger
}

// NewRefresher creates a refresher bound to the token store.
func NewRefresher(vendorAPI VendorAPI, store *Store, log *slog.Logger) *Refresher {
	return &Refresher{api: vendorAPI, store: store, log: log}
}

// Refresh obtains a fresh pair. The store is re-read first: disk is
// authoritative because any concurrent poller may have refreshed
// already, and using its newer refresh token avoids invalidating the
// session. The caller-supplied fallback is used only when nothing is
// stored. Both new values are persisted before returning.
//
// A 4xx from the vendor is KindRefreshRejected: the session is dead and
// the user must log in again; no automatic re-login is attempted.
func (r *Refresher) Refresh(ctx context.Context, fallback string) (Credentials, error) {
	refreshToken := r.store.Load(TokenRefresh)
	if refreshToken == "" {
		refreshToken = fallback
	}

	access, refresh, err := r.api.RefreshToken(ctx, refreshToken)
	if err != nil {
		if api.IsClientError(err) {
			return Credentials{}, &Error{Kind: KindRefreshRejected, Err: err}
		}
		return Credentials{}, &Error{Kind: KindUpstreamUnavailable, Err: err}
	}

	pair := Credentials{AccessToken: access, RefreshToken: refresh}
	if err := r.store.SavePair(pair); err != nil {
		return Credentials{}, err
	}
	r.log.Debug("vendor token pair refreshed")
	return pair, nil
}
