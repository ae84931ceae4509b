package engine

import (
	"context"
	"errors"

	"github.com/sawpanic/skinmarket/internal/credentials"
	"github.com/sawpanic/skinmarket/internal/marketclient"
	"github.com/sawpanic/skinmarket/internal/model"
)

// cheapSearchKeyword is a known, inexpensive query used purely to confirm
// a platform's credentials are still accepted; its results are discarded.
const cheapSearchKeyword = "AK-47"

// searcher is the subset of marketclient.Client the checker depends on.
type searcher interface {
	Search(ctx context.Context, keyword string) ([]model.Item, error)
}

// authChecker validates a platform's loaded credential bag by issuing one
// cheap authenticated search and classifying the outcome (spec §4.2). It
// checks the credentials currently held by the platform's Marketplace
// Client rather than the bag parameter directly, since Check is only ever
// invoked immediately after credentials.Store.Load populates that same
// bag onto the client via Credentials.Bag.
type authChecker struct {
	clients map[model.Platform]searcher
}

// newAuthChecker returns an authChecker with no clients wired yet: the
// credentials.Store that holds it as a Checker must exist before the
// Marketplace Clients it decorates can be built, so setClients is called
// once those clients come into being.
func newAuthChecker() *authChecker {
	return &authChecker{clients: make(map[model.Platform]searcher)}
}

func (a *authChecker) setClients(clientA, clientB searcher) {
	a.clients[model.PlatformA] = clientA
	a.clients[model.PlatformB] = clientB
}

func (a *authChecker) Check(platform model.Platform, _ credentials.Bag) credentials.Result {
	client, ok := a.clients[platform]
	if !ok {
		return credentials.Result{Status: credentials.StatusInvalid, Reason: "unknown platform"}
	}

	_, err := client.Search(context.Background(), cheapSearchKeyword)
	if err == nil {
		return credentials.Result{Status: credentials.StatusValid}
	}

	var failure *marketclient.Failure
	if errors.As(err, &failure) {
		switch failure.Class {
		case marketclient.ErrAuthFailed:
			return credentials.Result{Status: credentials.StatusInvalid, Reason: failure.Error()}
		case marketclient.ErrRateLimitedPersistent, marketclient.ErrTransport, marketclient.ErrMalformedResponse:
			return credentials.Result{Status: credentials.StatusTransientFailure, Reason: failure.Error()}
		}
	}
	return credentials.Result{Status: credentials.StatusTransientFailure, Reason: err.Error()}
}
