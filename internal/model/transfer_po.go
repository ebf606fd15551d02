package model

import "time"

const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusFailed    = "failed"
)

// TransferRecord corresponds to the transfers table. Rows are written once and
// never updated.
type TransferRecord struct {
	Id            int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	FromNetwork   string    `gorm:"column:from_network;size:64;not null" json:"from_network"`
	ToNetwork     string    `gorm:"column:to_network;size:64;not null" json:"to_network"`
	FromAddress   string    `gorm:"column:from_address;size:128;not null;index" json:"from_address"`
	ToAddress     string    `gorm:"column:to_address;size:128;not null" json:"to_address"`
	Amount        string    `gorm:"column:amount;size:80;not null" json:"amount"`
	TokenSymbol   string    `gorm:"column:token_symbol;size:16;not null" json:"token_symbol"`
	Status        string    `gorm:"column:status;size:16;not null" json:"status"`
	TxHash        string    `gorm:"column:tx_hash;size:160;not null;index" json:"tx_hash"`
	Fee           string    `gorm:"column:fee;size:80" json:"fee"`
	EstimatedTime string    `gorm:"column:estimated_time;size:32" json:"estimated_time"`
	ExplorerUrl   string    `gorm:"column:explorer_url;size:255" json:"explorer_url"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (TransferRecord) TableName() string {
	return "transfers"
}
