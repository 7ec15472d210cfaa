/**
 * @description
 * Typed error taxonomy for the tenancy lifecycle. Every domain failure is a
 * sentinel returned to the caller; errors are never used for normal control
 * flow and handlers map them to HTTP codes with errors.Is.
 */

package app

import "errors"

var (
	// ErrInvalidTransition means a state-machine guard did not hold. Always
	// recoverable by the caller re-fetching the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrForbidden means the caller is not a party to the entity.
	ErrForbidden = errors.New("caller is not permitted to act on this entity")

	// ErrInvalidBid means a non-positive bid amount.
	ErrInvalidBid = errors.New("bid amount must be positive")

	// ErrOutOfOrderSignature means the landlord attempted to sign before the
	// student. The ordering is enforced here, not just by the UI.
	ErrOutOfOrderSignature = errors.New("student must sign before landlord")

	// ErrSignatureConflict means a party who already signed submitted a
	// different signature reference.
	ErrSignatureConflict = errors.New("party already signed with a different signature reference")

	// ErrMissingSignatureRef means the wallet interaction did not produce a
	// signature reference; the contract is left untouched.
	ErrMissingSignatureRef = errors.New("signature reference is required")

	// ErrContractImmutable means the terms snapshot is frozen by full
	// signature.
	ErrContractImmutable = errors.New("contract terms are frozen after both signatures")

	// ErrReconciliationConflict means the on-chain status disagrees with the
	// stored state; the case is queued for an operator, never auto-resolved.
	ErrReconciliationConflict = errors.New("on-chain status conflicts with stored transaction state")

	// ErrWalletNotConnected means an operation required an on-chain address
	// that the user has not linked yet.
	ErrWalletNotConnected = errors.New("wallet address is not connected")
)
