package model

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = gorm.ErrRecordNotFound

const DefaultListLimit = 50

// ListOptions orders records by creation time.
type ListOptions struct {
	Limit int
	Desc  bool
}

// TransferFilter matches records on every non-empty field.
type TransferFilter struct {
	FromAddress string
	ToAddress   string
	FromNetwork string
	Status      string
	TxHash      string
}

// TransfersDao defines the database operations on the transfers table.
// Records are immutable once created, so there is no update.
type TransfersDao interface {
	Insert(ctx context.Context, data *TransferRecord) error
	List(ctx context.Context, opts ListOptions) ([]*TransferRecord, error)
	Filter(ctx context.Context, filter TransferFilter, limit int) ([]*TransferRecord, error)
	FindOneByTxHash(ctx context.Context, txHash string) (*TransferRecord, error)
}

type transfersDao struct {
	db *gorm.DB
}

// NewTransfersDao creates a new instance of TransfersDao.
func NewTransfersDao(db *gorm.DB) TransfersDao {
	return &transfersDao{
		db: db,
	}
}

// Insert adds a new record and fills in its id.
func (d *transfersDao) Insert(ctx context.Context, data *TransferRecord) error {
	return d.db.WithContext(ctx).Create(data).Error
}

// List returns the most recent records first when Desc is set.
func (d *transfersDao) List(ctx context.Context, opts ListOptions) ([]*TransferRecord, error) {
	var records []*TransferRecord
	err := d.db.WithContext(ctx).
		Order(orderClause(opts.Desc)).
		Limit(normalizeLimit(opts.Limit)).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Filter returns matching records, newest first.
func (d *transfersDao) Filter(ctx context.Context, filter TransferFilter, limit int) ([]*TransferRecord, error) {
	query := d.db.WithContext(ctx)
	if filter.FromAddress != "" {
		query = query.Where("from_address = ?", filter.FromAddress)
	}
	if filter.ToAddress != "" {
		query = query.Where("to_address = ?", filter.ToAddress)
	}
	if filter.FromNetwork != "" {
		query = query.Where("from_network = ?", filter.FromNetwork)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TxHash != "" {
		query = query.Where("tx_hash = ?", filter.TxHash)
	}

	var records []*TransferRecord
	err := query.Order(orderClause(true)).Limit(normalizeLimit(limit)).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FindOneByTxHash retrieves a single transfer by its transaction id.
func (d *transfersDao) FindOneByTxHash(ctx context.Context, txHash string) (*TransferRecord, error) {
	var resp TransferRecord
	err := d.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&resp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &resp, nil
}

func orderClause(desc bool) string {
	if desc {
		return "created_at DESC, id DESC"
	}
	return "created_at ASC, id ASC"
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
