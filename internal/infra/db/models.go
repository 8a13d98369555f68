package db

import "time"

type PoisonMessageModel struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	WorkerID   string    `gorm:"index;not null"`
	Raw        string    `gorm:"type:text;not null"`
	Reason     string    `gorm:"not null"`
	ReceivedAt time.Time `gorm:"index;not null"`
}

func (PoisonMessageModel) TableName() string {
	return "poison_messages"
}
