// Package journal 终态结果的 MySQL 流水
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"sol-txflow/internal/logic/outcome"
	"sol-txflow/internal/logic/txn"
)

// OutcomeRow 表 tx_outcome
type OutcomeRow struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	RequestID    string    `gorm:"type:char(36);not null"`
	Signature    string    `gorm:"type:varchar(88);uniqueIndex;not null"`
	Outcome      string    `gorm:"type:varchar(32);index;not null"`
	Commitment   string    `gorm:"type:varchar(16)"`
	Slot         uint64    `gorm:"index"`
	BlockTime    *int64
	Fee          uint64
	Error        string `gorm:"type:text"`
	ErrorRaw     string `gorm:"type:text"`
	Logs         string `gorm:"type:mediumtext"` // JSON 数组
	ComputeUnits *uint64
	ElapsedMs    int64
	RecordedAt   time.Time `gorm:"index"`
	CreatedAt    time.Time
}

func (OutcomeRow) TableName() string {
	return "tx_outcome"
}

const batchLimit = 500

// Dao 实现 outcome.Journal
type Dao struct {
	db *gorm.DB
}

var _ outcome.Journal = (*Dao)(nil)

func NewDao(dsn string, debug bool) (*Dao, error) {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(level)})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.AutoMigrate(&OutcomeRow{}); err != nil {
		return nil, fmt.Errorf("migrate tx_outcome: %w", err)
	}
	return &Dao{db: db}, nil
}

func NewDaoWithDB(db *gorm.DB) *Dao {
	return &Dao{db: db}
}

func toRow(rec *outcome.Record) (*OutcomeRow, error) {
	logs := []byte("[]")
	if len(rec.Logs) > 0 {
		var err error
		if logs, err = json.Marshal(rec.Logs); err != nil {
			return nil, err
		}
	}
	return &OutcomeRow{
		RequestID:    uuid.NewString(),
		Signature:    rec.Signature,
		Outcome:      rec.Outcome,
		Commitment:   rec.Commitment,
		Slot:         rec.Slot,
		BlockTime:    rec.BlockTime,
		Fee:          rec.Fee,
		Error:        rec.Error,
		ErrorRaw:     rec.ErrorRaw,
		Logs:         string(logs),
		ComputeUnits: rec.ComputeUnits,
		ElapsedMs:    rec.ElapsedMs,
		RecordedAt:   rec.RecordedAt,
	}, nil
}

func fromRow(row *OutcomeRow) *outcome.Record {
	rec := &outcome.Record{
		Signature:    row.Signature,
		Outcome:      row.Outcome,
		Commitment:   row.Commitment,
		Slot:         row.Slot,
		BlockTime:    row.BlockTime,
		Fee:          row.Fee,
		Error:        row.Error,
		ErrorRaw:     row.ErrorRaw,
		ComputeUnits: row.ComputeUnits,
		ElapsedMs:    row.ElapsedMs,
		RecordedAt:   row.RecordedAt,
	}
	_ = json.Unmarshal([]byte(row.Logs), &rec.Logs)
	return rec
}

// BatchInsert 按 batchLimit 分批写入；签名冲突时以新结果覆盖，但 TIMED_OUT 不覆盖已确定的结果
func (d *Dao) BatchInsert(ctx context.Context, records []*outcome.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]*OutcomeRow, 0, len(records))
	for _, rec := range records {
		row, err := toRow(rec)
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.Signature, err)
		}
		rows = append(rows, row)
	}
	return d.insertStatement(ctx).CreateInBatches(rows, batchLimit).Error
}

// 冲突时更新的列；outcome 必须最后赋值，前面的条件读取的是旧值
var upsertColumns = []string{
	"commitment", "slot", "block_time", "fee", "error", "error_raw",
	"logs", "compute_units", "elapsed_ms", "recorded_at", "outcome",
}

var timedOut = txn.OutcomeTimedOut.String()

func (d *Dao) insertStatement(ctx context.Context) *gorm.DB {
	set := make(clause.Set, 0, len(upsertColumns))
	for _, col := range upsertColumns {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: col},
			Value: gorm.Expr(fmt.Sprintf("IF(VALUES(`outcome`) = ? AND `outcome` <> ?, `%s`, VALUES(`%s`))", col, col),
				timedOut, timedOut),
		})
	}
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "signature"}},
		DoUpdates: set,
	})
}

// FindBySignature 不存在时返回 nil, nil
func (d *Dao) FindBySignature(ctx context.Context, signature string) (*outcome.Record, error) {
	var row OutcomeRow
	err := d.db.WithContext(ctx).Where("signature = ?", signature).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find outcome %s: %w", signature, err)
	}
	return fromRow(&row), nil
}

// DeleteBefore 分批删除，避免长事务锁表
func (d *Dao) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		res := d.db.WithContext(ctx).
			Where("recorded_at < ?", before).
			Limit(1000).
			Delete(&OutcomeRow{})
		if res.Error != nil {
			return total, fmt.Errorf("delete old outcomes: %w", res.Error)
		}
		total += res.RowsAffected
		if res.RowsAffected == 0 {
			return total, nil
		}
	}
}

func (d *Dao) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Dao) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
