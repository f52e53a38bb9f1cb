package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MessageOutcome 消息处理结果记录
type MessageOutcome struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement"`
	MessageID    string         `gorm:"column:message_id;type:varchar(128);index"`
	ChatID       string         `gorm:"column:chat_id;type:varchar(128)"`
	Status       string         `gorm:"column:status;type:varchar(32);index"`
	Attempts     int            `gorm:"column:attempts"`
	ErrorKind    string         `gorm:"column:error_kind;type:varchar(32)"`
	ErrorMessage string         `gorm:"column:error_message;type:text"`
	ErrorDetails datatypes.JSON `gorm:"column:error_details"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
}

// TableName 表名
func (MessageOutcome) TableName() string {
	return "message_outcomes"
}

// OutcomeDAO 处理结果数据访问对象
type OutcomeDAO struct {
	db *gorm.DB
}

// NewOutcomeDAO 创建 OutcomeDAO 实例
func NewOutcomeDAO(dsn string) (*OutcomeDAO, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewOutcomeDAOWithDB(db), nil
}

// NewOutcomeDAOWithDB 使用已有连接创建 OutcomeDAO
func NewOutcomeDAOWithDB(db *gorm.DB) *OutcomeDAO {
	return &OutcomeDAO{db: db}
}

// AutoMigrate 建表
func (dao *OutcomeDAO) AutoMigrate(ctx context.Context) error {
	if err := dao.db.WithContext(ctx).AutoMigrate(&MessageOutcome{}); err != nil {
		return fmt.Errorf("failed to migrate message_outcomes: %w", err)
	}
	return nil
}

// NewOutcome 构造记录，details 序列化为 JSON 列
func NewOutcome(messageID, chatID, status string, attempts int, errorKind, errorMsg string, details map[string]interface{}) (*MessageOutcome, error) {
	rec := &MessageOutcome{
		MessageID:    messageID,
		ChatID:       chatID,
		Status:       status,
		Attempts:     attempts,
		ErrorKind:    errorKind,
		ErrorMessage: errorMsg,
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error details: %w", err)
		}
		rec.ErrorDetails = datatypes.JSON(raw)
	}
	return rec, nil
}

// Insert 写入一条处理结果
func (dao *OutcomeDAO) Insert(ctx context.Context, rec *MessageOutcome) error {
	if err := dao.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

// ListByMessageID 查询某条消息的全部处理记录（按时间升序）
func (dao *OutcomeDAO) ListByMessageID(ctx context.Context, messageID string) ([]*MessageOutcome, error) {
	var out []*MessageOutcome
	result := dao.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("id ASC").
		Find(&out)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", result.Error)
	}
	return out, nil
}

// Close 关闭数据库连接
func (dao *OutcomeDAO) Close() error {
	sqlDB, err := dao.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
