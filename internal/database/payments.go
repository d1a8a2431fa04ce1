// Bookcore - Tour Booking and Availability Engine
// Copyright 2026 OpenVoyage
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openvoyage/bookcore

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openvoyage/bookcore/internal/metrics"
	"github.com/openvoyage/bookcore/internal/models"
)

const transactionColumns = `id, booking_id, gateway, external_id, status,
	amount, currency, commission, net_amount,
	payer_name, payer_email, payer_country, failure_reason, created_at, completed_at`

// InsertTransaction records a new payment attempt.
func (db *DB) InsertTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	start := time.Now()
	_, err := db.conn.ExecContext(ctx, `INSERT INTO payment_transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.BookingID, tx.Gateway, nullIfEmpty(tx.ExternalID), string(tx.Status),
		tx.Amount, tx.Currency, tx.Commission, tx.NetAmount,
		nullIfEmpty(tx.PayerName), nullIfEmpty(tx.PayerEmail), nullIfEmpty(tx.PayerCountry),
		nullIfEmpty(tx.FailureReason), tx.CreatedAt, tx.CompletedAt)
	metrics.RecordDBQuery("insert", "payment_transactions", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

// GetTransaction fetches one transaction by ID.
func (db *DB) GetTransaction(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

// GetTransactionByExternalID fetches a transaction by its gateway reference.
// Webhook handlers use this for idempotent correlation.
func (db *DB) GetTransactionByExternalID(ctx context.Context, gateway, externalID string) (*models.PaymentTransaction, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE gateway = ? AND external_id = ?`,
		gateway, externalID)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get transaction by external id %s/%s: %w", gateway, externalID, err)
	}
	return tx, nil
}

// ListTransactionsByBooking returns all payment attempts for a booking,
// newest first.
func (db *DB) ListTransactionsByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentTransaction, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM payment_transactions WHERE booking_id = ? ORDER BY created_at DESC`,
		bookingID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for booking %s: %w", bookingID, err)
	}
	defer closeQuietly(rows)

	var transactions []models.PaymentTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, *tx)
	}
	return transactions, rows.Err()
}

// UpdateTransactionStatus sets the status, external reference, and failure
// reason of a transaction. CompletedAt is stamped when the status is terminal
// success.
func (db *DB) UpdateTransactionStatus(ctx context.Context, id uuid.UUID,
	status models.TransactionStatus, externalID, failureReason string) error {
	var completedAt interface{}
	if status == models.TransactionStatusCompleted {
		completedAt = time.Now().UTC()
	}

	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `UPDATE payment_transactions
		SET status = ?,
		    external_id = COALESCE(?, external_id),
		    failure_reason = ?,
		    completed_at = COALESCE(?, completed_at)
		WHERE id = ?`,
		string(status), nullIfEmpty(externalID), nullIfEmpty(failureReason), completedAt, id)
	metrics.RecordDBQuery("update", "payment_transactions", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertRefund appends a refund to a transaction and recomputes the parent's
// status in one transaction. The refund is rejected when it would push the
// refunded total past the transaction amount.
func (db *DB) InsertRefund(ctx context.Context, refund *models.Refund) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	var amount int64
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT amount, status FROM payment_transactions WHERE id = ?`,
		refund.TransactionID).Scan(&amount, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("load transaction for refund: %w", err)
	}

	var refunded int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM refund_transactions WHERE transaction_id = ? AND status != 'failed'`,
		refund.TransactionID).Scan(&refunded)
	if err != nil {
		return fmt.Errorf("sum existing refunds: %w", err)
	}
	if refunded+refund.Amount > amount {
		return fmt.Errorf("refund of %d exceeds remaining refundable %d: %w",
			refund.Amount, amount-refunded, ErrRefundExceedsAmount)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO refund_transactions
		(id, transaction_id, amount, reason, status, gateway_refund_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		refund.ID, refund.TransactionID, refund.Amount, nullIfEmpty(refund.Reason),
		string(refund.Status), nullIfEmpty(refund.GatewayRefundID), refund.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}

	newStatus := models.TransactionStatusPartiallyRefunded
	if refunded+refund.Amount == amount {
		newStatus = models.TransactionStatusRefunded
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE payment_transactions SET status = ? WHERE id = ?`,
		string(newStatus), refund.TransactionID)
	if err != nil {
		return fmt.Errorf("update transaction after refund: %w", err)
	}

	return tx.Commit()
}

// ListRefundsByTransaction returns the refund children of a transaction.
func (db *DB) ListRefundsByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.Refund, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, transaction_id, amount, reason, status, gateway_refund_id, created_at
		FROM refund_transactions WHERE transaction_id = ? ORDER BY created_at`,
		transactionID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer closeQuietly(rows)

	var refunds []models.Refund
	for rows.Next() {
		var r models.Refund
		var reason, gatewayRefundID sql.NullString
		var status string
		if err := rows.Scan(&r.ID, &r.TransactionID, &r.Amount, &reason, &status, &gatewayRefundID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		r.Reason = reason.String
		r.Status = models.RefundState(status)
		r.GatewayRefundID = gatewayRefundID.String
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}

// UpdateRefundStatus sets the outcome of a refund attempt.
func (db *DB) UpdateRefundStatus(ctx context.Context, id uuid.UUID, status models.RefundState, gatewayRefundID string) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE refund_transactions
		SET status = ?, gateway_refund_id = COALESCE(?, gateway_refund_id)
		WHERE id = ?`,
		string(status), nullIfEmpty(gatewayRefundID), id)
	if err != nil {
		return fmt.Errorf("update refund status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// PaymentMetricsWindow aggregates transaction outcomes between from and to.
func (db *DB) PaymentMetricsWindow(ctx context.Context, from, to time.Time) (*models.PaymentMetrics, error) {
	m := &models.PaymentMetrics{
		From:        from,
		To:          to,
		GeneratedAt: time.Now().UTC(),
	}

	err := db.conn.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status IN ('refunded', 'partially_refunded')),
			COALESCE(SUM(amount) FILTER (WHERE status IN ('completed', 'refunded', 'partially_refunded')), 0),
			COALESCE(SUM(commission) FILTER (WHERE status IN ('completed', 'refunded', 'partially_refunded')), 0)
		FROM payment_transactions WHERE created_at >= ? AND created_at < ?`, from, to).
		Scan(&m.TransactionCount, &m.CompletedCount, &m.FailedCount, &m.RefundedCount,
			&m.TotalAmount, &m.TotalCommission)
	if err != nil {
		return nil, fmt.Errorf("payment metrics aggregates: %w", err)
	}

	err = db.conn.QueryRowContext(ctx, `SELECT COALESCE(SUM(r.amount), 0)
		FROM refund_transactions r
		JOIN payment_transactions t ON t.id = r.transaction_id
		WHERE r.status != 'failed' AND t.created_at >= ? AND t.created_at < ?`, from, to).
		Scan(&m.TotalRefunded)
	if err != nil {
		return nil, fmt.Errorf("payment metrics refunds: %w", err)
	}

	if m.TransactionCount > 0 {
		m.SuccessRate = float64(m.CompletedCount) / float64(m.TransactionCount) * 100.0
	}
	return m, nil
}

func scanTransaction(row rowScanner) (*models.PaymentTransaction, error) {
	var t models.PaymentTransaction
	var status string
	var externalID, payerName, payerEmail, payerCountry, failureReason sql.NullString

	err := row.Scan(&t.ID, &t.BookingID, &t.Gateway, &externalID, &status,
		&t.Amount, &t.Currency, &t.Commission, &t.NetAmount,
		&payerName, &payerEmail, &payerCountry, &failureReason, &t.CreatedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}

	t.Status = models.TransactionStatus(status)
	t.ExternalID = externalID.String
	t.PayerName = payerName.String
	t.PayerEmail = payerEmail.String
	t.PayerCountry = payerCountry.String
	t.FailureReason = failureReason.String
	return &t, nil
}
