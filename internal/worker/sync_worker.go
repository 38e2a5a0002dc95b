// Package worker exports created occurrences to the spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ricorrenti/internal/amqp"
	"ricorrenti/internal/cache"
	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
	"ricorrenti/internal/sheets"
)

// SyncStore is the part of the SQLite repository the worker needs.
type SyncStore interface {
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	GetWallet(ctx context.Context, id int64) (core.Wallet, error)
	PendingSync(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// SyncWorker handles synchronization of occurrences from SQLite to Google Sheets
type SyncWorker struct {
	store       SyncStore
	sheets      sheets.Exporter
	batchSize   int
	walletNames *cache.LRU[int64, string]
}

func NewSyncWorker(store SyncStore, exporter sheets.Exporter, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{
		store:       store,
		sheets:      exporter,
		batchSize:   batchSize,
		walletNames: cache.NewLRU[int64, string](256, 10*time.Minute),
	}
}

// Caches returns the worker's caches for periodic expiry by a cache.Manager.
func (w *SyncWorker) Caches() []cache.Cleaner {
	return []cache.Cleaner{w.walletNames}
}

// HandleOccurrenceMessage processes a single occurrence message from AMQP.
// It is an amqp.MessageHandler.
func (w *SyncWorker) HandleOccurrenceMessage(ctx context.Context, msg *amqp.OccurrenceCreatedMessage) error {
	slog.InfoContext(ctx, "Processing occurrence message", applog.FieldComponent, applog.ComponentWorker,
		applog.FieldTxID, msg.TransactionID,
		applog.FieldRuleID, msg.RecurrenceID,
		applog.FieldDay, msg.OccurrenceDay)

	tx, err := w.store.GetTransaction(ctx, msg.TransactionID)
	if errors.Is(err, core.ErrTransactionNotFound) {
		// Nothing to export; requeueing would loop forever.
		slog.WarnContext(ctx, "Occurrence not found, dropping message", applog.FieldComponent, applog.ComponentWorker, applog.FieldTxID, msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	exported, err := w.sheets.ExportedTransactionIDs(ctx)
	if err != nil {
		return fmt.Errorf("list exported transactions: %w", err)
	}

	return w.export(ctx, tx, exported)
}

// StartupSyncCheck exports occurrences still pending at worker startup. It
// recovers from lost messages and worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.store.PendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending occurrences for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending occurrences found on startup", applog.FieldComponent, applog.ComponentWorker)
		return nil
	}

	slog.InfoContext(ctx, "Found pending occurrences on startup, processing...", applog.FieldComponent, applog.ComponentWorker,
		applog.FieldOperation, applog.OpStartup,
		"count", len(pending))

	exported, err := w.sheets.ExportedTransactionIDs(ctx)
	if err != nil {
		return fmt.Errorf("list exported transactions: %w", err)
	}

	successCount := 0
	errorCount := 0
	for _, tx := range pending {
		if err := w.export(ctx, tx, exported); err != nil {
			slog.ErrorContext(ctx, "Failed to sync occurrence during startup", applog.FieldComponent, applog.ComponentWorker,
				applog.FieldTxID, tx.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed", applog.FieldComponent, applog.ComponentWorker,
		"total", len(pending),
		"synced", successCount,
		"errors", errorCount)

	return nil
}

func (w *SyncWorker) export(ctx context.Context, tx core.Transaction, exported map[int64]struct{}) error {
	if _, done := exported[tx.ID]; done {
		slog.InfoContext(ctx, "Occurrence already in sheet", applog.FieldComponent, applog.ComponentWorker, applog.FieldTxID, tx.ID)
		if err := w.store.MarkSynced(ctx, tx.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark as synced", applog.FieldComponent, applog.ComponentWorker, applog.FieldTxID, tx.ID, "error", err)
		}
		return nil
	}

	ref, err := w.sheets.AppendRow(ctx, sheets.RowFromTransaction(tx, w.walletName(ctx, tx)))
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, tx.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", applog.FieldComponent, applog.ComponentWorker, applog.FieldTxID, tx.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheets: %w", err)
	}
	exported[tx.ID] = struct{}{}

	// Don't return error here - the sync actually worked
	if err := w.store.MarkSynced(ctx, tx.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", applog.FieldComponent, applog.ComponentWorker, applog.FieldTxID, tx.ID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced occurrence", applog.FieldComponent, applog.ComponentWorker,
		applog.FieldOperation, applog.OpSync,
		applog.FieldTxID, tx.ID,
		"sheets_ref", ref,
		"name", tx.Name,
		applog.FieldAmountCents, tx.Amount.Cents)

	return nil
}

func (w *SyncWorker) walletName(ctx context.Context, tx core.Transaction) string {
	id := tx.WalletID
	if tx.Type == core.Transfer {
		id = tx.OriginWalletID
	}
	if name, ok := w.walletNames.Get(id); ok {
		return name
	}
	wallet, err := w.store.GetWallet(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "Wallet lookup failed, exporting without name", applog.FieldComponent, applog.ComponentWorker,
			applog.FieldTxID, tx.ID, "wallet_id", id, "error", err)
		return ""
	}
	w.walletNames.Set(id, wallet.Name)
	return wallet.Name
}
