// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package remote

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/logging"
	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
)

// BreakerClient wraps Client with a circuit breaker so a dead or overloaded
// companion API fails fast instead of holding every drain pass at the full
// timeout. A rejected call is reported as an unknown-kind failure, which the
// sync engine treats as transient; entries stay queued until the circuit
// half-opens and real calls succeed again.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
}

// NewBreakerClient wraps the given client with a circuit breaker.
// The breaker opens after a 60% failure rate over at least 10 requests,
// resets its counts every minute while closed, and waits 2 minutes before
// probing with up to 3 half-open requests.
func NewBreakerClient(client *Client) *BreakerClient {
	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "companion-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
		},
	})

	return &BreakerClient{client: client, cb: cb}
}

// rejectedResult converts a breaker rejection into a normalized result.
func rejectedResult(err error) models.RPCResult {
	return models.RPCResult{OK: false, Kind: models.FailureUnknown, Message: err.Error()}
}

// executeRPC runs a mutation through the breaker. The underlying call never
// returns a Go error; a failed RPCResult is reported to the breaker as a
// failure only when it looks like a server/transport problem, since 4xx
// responses say nothing about the API's health.
func (b *BreakerClient) executeRPC(fn func() models.RPCResult) models.RPCResult {
	out, err := b.cb.Execute(func() (interface{}, error) {
		res := fn()
		if !res.OK && (res.StatusCode == 0 || res.StatusCode >= 500) {
			return res, errors.New(res.Message)
		}
		return res, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Msg("Circuit breaker rejected request")
			return rejectedResult(err)
		}
		if res, ok := out.(models.RPCResult); ok {
			return res
		}
		return rejectedResult(err)
	}
	return out.(models.RPCResult)
}

// CreateBookmark runs Client.CreateBookmark through the breaker.
func (b *BreakerClient) CreateBookmark(ctx context.Context, bm *models.Bookmark) models.RPCResult {
	return b.executeRPC(func() models.RPCResult { return b.client.CreateBookmark(ctx, bm) })
}

// UpdateBookmark runs Client.UpdateBookmark through the breaker.
func (b *BreakerClient) UpdateBookmark(ctx context.Context, serverID string, upd models.BookmarkUpdate) models.RPCResult {
	return b.executeRPC(func() models.RPCResult { return b.client.UpdateBookmark(ctx, serverID, upd) })
}

// DeleteBookmark runs Client.DeleteBookmark through the breaker.
func (b *BreakerClient) DeleteBookmark(ctx context.Context, serverID string) models.RPCResult {
	return b.executeRPC(func() models.RPCResult { return b.client.DeleteBookmark(ctx, serverID) })
}

// CreateNote runs Client.CreateNote through the breaker.
func (b *BreakerClient) CreateNote(ctx context.Context, n *models.Note) (string, models.RPCResult) {
	var serverID string
	res := b.executeRPC(func() models.RPCResult {
		id, r := b.client.CreateNote(ctx, n)
		serverID = id
		return r
	})
	return serverID, res
}

// UpdateNote runs Client.UpdateNote through the breaker.
func (b *BreakerClient) UpdateNote(ctx context.Context, serverID string, n *models.Note) models.RPCResult {
	return b.executeRPC(func() models.RPCResult { return b.client.UpdateNote(ctx, serverID, n) })
}

// DeleteNote runs Client.DeleteNote through the breaker.
func (b *BreakerClient) DeleteNote(ctx context.Context, serverID string) models.RPCResult {
	return b.executeRPC(func() models.RPCResult { return b.client.DeleteNote(ctx, serverID) })
}

// FetchBookmarks runs Client.FetchBookmarks through the breaker.
func (b *BreakerClient) FetchBookmarks(ctx context.Context, year int) ([]models.RemoteBookmark, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.client.FetchBookmarks(ctx, year)
	})
	if err != nil {
		return nil, err
	}
	return out.([]models.RemoteBookmark), nil
}

// FetchConferenceDataset runs Client.FetchConferenceDataset through the
// breaker.
func (b *BreakerClient) FetchConferenceDataset(ctx context.Context, year int) (*models.ConferenceDataset, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.client.FetchConferenceDataset(ctx, year)
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.ConferenceDataset), nil
}
