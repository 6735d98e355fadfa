package models

import (
	"strings"
	"time"
)

// MetaDimension 业务维度元数据
type MetaDimension struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	DisplayName string    `gorm:"size:128" json:"display_name"`
	Description string    `gorm:"size:512" json:"description"`
	TableName   string    `gorm:"size:128" json:"table_name"`
	ColumnName  string    `gorm:"size:128" json:"column_name"`
	DataType    string    `gorm:"size:32" json:"data_type"`
	Aliases     string    `gorm:"size:512" json:"aliases"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MetaMetric 业务指标元数据
type MetaMetric struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	DisplayName string    `gorm:"size:128" json:"display_name"`
	Description string    `gorm:"size:512" json:"description"`
	Expression  string    `gorm:"size:512" json:"expression"`
	Unit        string    `gorm:"size:32" json:"unit"`
	Aliases     string    `gorm:"size:512" json:"aliases"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AliasList 解析逗号分隔的别名列表
func (d *MetaDimension) AliasList() []string {
	return splitAliases(d.Aliases)
}

// AliasList 解析逗号分隔的别名列表
func (m *MetaMetric) AliasList() []string {
	return splitAliases(m.Aliases)
}

func splitAliases(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	aliases := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			aliases = append(aliases, trimmed)
		}
	}
	return aliases
}

// MetaDimensionRequest 维度创建/更新请求
type MetaDimensionRequest struct {
	Name        string   `json:"name" binding:"required"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	TableName   string   `json:"table_name"`
	ColumnName  string   `json:"column_name"`
	DataType    string   `json:"data_type"`
	Aliases     []string `json:"aliases"`
}

// MetaMetricRequest 指标创建/更新请求
type MetaMetricRequest struct {
	Name        string   `json:"name" binding:"required"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Expression  string   `json:"expression"`
	Unit        string   `json:"unit"`
	Aliases     []string `json:"aliases"`
}
