package model

import (
	"time"
	"unicode"
)

// Logbook 每个实例一份持久化文档，Data 为 LogbookData 的 JSON
type Logbook struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	InstanceID string    `json:"instance_id" gorm:"size:128;uniqueIndex;not null"`
	Data       string    `json:"-" gorm:"type:longtext"` // 整份文档，MySQL 的 text 上限只有 64KB
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DefaultInstanceID 未指定实例时使用的标识
const DefaultInstanceID = "default"

// 历史记录操作类型
const (
	OpInitial         = "initial"
	OpGeneric         = "generic"
	OpCellEdit        = "cell-edit"
	OpCellEditSep     = "cell-edit-separator"
	OpItemAdd         = "item-add"
	OpItemDelete      = "item-delete"
	OpSeparatorAdd    = "separator-add"
	OpSeparatorDelete = "separator-delete"
	OpChapterDelete   = "chapter-delete"
	OpImport          = "import"
	OpAIProcess       = "ai-process"
	OpSettingsChange  = "settings-change"
	OpManualSave      = "manual-save"
)

var operationNames = map[string]string{
	OpGeneric:         "Modification",
	OpCellEdit:        "Édition de cellule",
	OpItemAdd:         "Ajout d'élément",
	OpItemDelete:      "Suppression d'élément",
	OpSeparatorAdd:    "Ajout de séparateur",
	OpSeparatorDelete: "Suppression de séparateur",
	OpChapterDelete:   "Suppression de chapitre",
	OpImport:          "Importation",
	OpInitial:         "État initial",
	OpSettingsChange:  "Changement de paramètres",
	OpManualSave:      "Sauvegarde manuelle",
}

// OperationName 操作类型的展示名称，未登记的类型首字母大写
func OperationName(op string) string {
	if op == "" {
		return "Modification"
	}
	if name, ok := operationNames[op]; ok {
		return name
	}
	r := []rune(op)
	return string(unicode.ToUpper(r[0])) + string(r[1:])
}
