package finance

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"insaat-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const transactionPrefix = "TXN"

// FormatTransactionNumber renders TXN<YYYYMMDD><seq>, seq zero-padded to four
// digits.
func FormatTransactionNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s%s%04d", transactionPrefix, day.Format("20060102"), seq)
}

// nextTransactionNumber allocates the next number for day from the per-day
// counter. It must run inside the caller's transaction.
func nextTransactionNumber(tx *gorm.DB, day time.Time) (string, error) {
	key := day.Format("20060102")

	seed, err := maxSequenceForDay(tx, key)
	if err != nil {
		return "", err
	}

	row := models.TransactionSequence{Day: key, LastSeq: seed + 1}
	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}},
		DoUpdates: clause.Set{{
			Column: clause.Column{Name: "last_seq"},
			Value:  gorm.Expr("transaction_sequences.last_seq + 1"),
		}},
	}).Create(&row).Error
	if err != nil {
		return "", fmt.Errorf("advance transaction sequence: %w", err)
	}

	var current models.TransactionSequence
	if err := tx.Where("day = ?", key).First(&current).Error; err != nil {
		return "", fmt.Errorf("read transaction sequence: %w", err)
	}
	return FormatTransactionNumber(day, current.LastSeq), nil
}

// maxSequenceForDay seeds a fresh counter from numbers already in the ledger,
// e.g. rows imported before the counter existed.
func maxSequenceForDay(tx *gorm.DB, key string) (int, error) {
	var exists int64
	if err := tx.Model(&models.TransactionSequence{}).Where("day = ?", key).Count(&exists).Error; err != nil {
		return 0, fmt.Errorf("check transaction sequence: %w", err)
	}
	if exists > 0 {
		return 0, nil
	}

	prefix := transactionPrefix + key
	var numbers []string
	if err := tx.Model(&models.ProjectTransaction{}).
		Where("transaction_number LIKE ?", prefix+"%").
		Pluck("transaction_number", &numbers).Error; err != nil {
		return 0, fmt.Errorf("scan transaction numbers: %w", err)
	}

	highest := 0
	for _, n := range numbers {
		seq, err := strconv.Atoi(strings.TrimPrefix(n, prefix))
		if err == nil && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}
