/**
 * @description
 * Domain models for the off-chain ledger: wallet accounts, the append-mostly
 * transaction log, and the reconciliation conflict queue. The off-chain
 * balance is only ever mutated together with a Transaction row; the source of
 * truth for deposit/withdraw finality is the external vault contract.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction types.
const (
	TxDeposit       = "deposit"
	TxWithdraw      = "withdraw"
	TxRentPayment   = "rent_payment"
	TxRentReceived  = "rent_received"
	TxDepositEscrow = "deposit_escrow"
	TxDepositRefund = "deposit_refund"
)

// Transaction statuses.
const (
	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
)

// WalletAccount is a user's off-chain ledger account. OffChainBalance is the
// ledger-confirmed spendable balance, equal at all times to the sum of
// completed Transaction deltas for the account.
type WalletAccount struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	OffChainBalance int64     `json:"off_chain_balance"` // in cents
	OnChainAddress  *string   `json:"on_chain_address,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Transaction is one row of the ledger. Amount is immutable after creation;
// only the status transitions (pending -> completed | failed).
type Transaction struct {
	ID                uuid.UUID  `json:"id"`
	WalletAccountID   uuid.UUID  `json:"wallet_account_id"`
	UserID            uuid.UUID  `json:"user_id"`
	Type              string     `json:"type"`
	Amount            int64      `json:"amount"` // always positive, in cents
	Status            string     `json:"status"`
	OnChainTxHash     *string    `json:"on_chain_tx_hash,omitempty"`
	RelatedRentCycle  *uuid.UUID `json:"related_rent_cycle_id,omitempty"`
	RelatedContractID *uuid.UUID `json:"related_contract_id,omitempty"`
	CounterpartyID    *uuid.UUID `json:"counterparty_id,omitempty"`
	Description       string     `json:"description"`
	ReconcileAttempts int        `json:"reconcile_attempts"`
	FailureReason     *string    `json:"failure_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Delta returns the signed effect of the transaction on the owning account's
// balance: credits are positive, debits negative.
func (t *Transaction) Delta() int64 {
	switch t.Type {
	case TxDeposit, TxRentReceived, TxDepositRefund:
		return t.Amount
	case TxWithdraw, TxRentPayment, TxDepositEscrow:
		return -t.Amount
	}
	return 0
}

// ReconciliationConflict is a row in the operator queue: the on-chain watcher
// reported a status that disagrees with the stored pending state. These are
// never auto-resolved.
type ReconciliationConflict struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	OnChainTxHash string    `json:"on_chain_tx_hash"`
	StoredStatus  string    `json:"stored_status"`
	VaultStatus   string    `json:"vault_status"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConnectWalletPayload binds an on-chain address to the caller's account.
type ConnectWalletPayload struct {
	WalletAddress string `json:"wallet_address"`
}

// RecordDepositPayload is sent after the client has already submitted the
// vault deposit on-chain and holds the transaction hash.
type RecordDepositPayload struct {
	Amount        int64  `json:"amount"` // in cents
	OnChainTxHash string `json:"on_chain_tx_hash"`
}

// WithdrawPayload requests a withdrawal from the vault to the connected
// wallet address.
type WithdrawPayload struct {
	Amount int64 `json:"amount"` // in cents
}

// WalletBalanceResponse is returned by the balance endpoint.
type WalletBalanceResponse struct {
	WalletAddress   *string `json:"wallet_address,omitempty"`
	OffChainBalance int64   `json:"off_chain_balance"`
	PendingDeposits int64   `json:"pending_deposits"`
}
