package core

import "errors"

// Sentinel domain errors, returned (possibly wrapped with fmt.Errorf's %w)
// by the Subscription Fabric, Live Feed Ingestor, Option-Chain Cache, and
// Execution Engine. Callers should compare with errors.Is, never string
// matching.
var (
	// ErrNotAllowed is returned when a subscription request names an
	// instrument outside the approved universe. Synthetic option tokens
	// are refused with ErrSyntheticToken instead.
	ErrNotAllowed = errors.New("instrument not allowed")

	// ErrCapacity is returned when every shard is at its subscription
	// capacity and no new shard can be opened.
	ErrCapacity = errors.New("subscription capacity exhausted")

	// ErrSyntheticToken is returned when a subscription targets a
	// synthesized (not vendor-native) option token.
	ErrSyntheticToken = errors.New("synthetic option token cannot be subscribed directly")

	// ErrUserBlocked is returned when an order is placed against a
	// blocked user account.
	ErrUserBlocked = errors.New("user account is blocked")

	// ErrSegmentRestricted is returned when an order's segment is not in
	// the account's allowed segments.
	ErrSegmentRestricted = errors.New("segment not permitted for this account")

	// ErrInvalidTrigger is returned by the pre-trade check when a trigger
	// order carries a non-positive trigger price, a LIMIT order a
	// non-positive price, or an order a non-positive quantity.
	ErrInvalidTrigger = errors.New("invalid trigger price")

	// ErrNoLiquidityTimeout is returned when a resting order could not be
	// filled before its timeout elapsed.
	ErrNoLiquidityTimeout = errors.New("no liquidity before timeout")

	// ErrMarginExceeded names the margin-shortfall condition. The
	// Execution Engine does not return it: an order whose required margin
	// exceeds the available margin is still accepted and carries a
	// MARGIN_EXCEEDED remark.
	ErrMarginExceeded = errors.New("required margin exceeds available margin")

	// ErrNoSnapshot is returned when the Execution Engine cannot resolve
	// a pricing snapshot for an instrument (no depth, no chain leg, no
	// live price fallback).
	ErrNoSnapshot = errors.New("no pricing snapshot available for instrument")

	// ErrFeedUnavailable is returned when the Live Feed Ingestor is not
	// in STREAMING state and a caller requires live data.
	ErrFeedUnavailable = errors.New("live feed unavailable")

	// ErrNotFound is a generic not-found sentinel reused by repositories
	// that don't need a narrower error (see internal/repository).
	ErrNotFound = errors.New("not found")
)
