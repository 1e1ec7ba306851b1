package model

import (
	"sort"
	"strings"
)

// itemTypeAliases 条目类型别名到规范类型
var itemTypeAliases = map[string]string{
	"definition": "définition", "définition": "définition",
	"theorem": "théorème", "théorème": "théorème", "theoreme": "théorème",
	"proposition": "proposition", "prop": "proposition",
	"lemma": "lemme", "lemme": "lemme",
	"corollary": "corollaire", "corollaire": "corollaire", "corol": "corollaire",
	"remark": "remarque", "remarque": "remarque", "rem": "remarque",
	"proof": "preuve", "preuve": "preuve",
	"example": "exemple", "exemple": "exemple", "ex": "exemple",
	"exercise": "exercice", "exercice": "exercice", "exo": "exercice",
	"activity": "activité", "activité": "activité", "activite": "activité", "act": "activité",
	"application": "application", "app": "application",
}

// NormalizeItemType 返回规范条目类型；未知类型原样返回
func NormalizeItemType(t string) string {
	if canonical, ok := itemTypeAliases[strings.ToLower(strings.TrimSpace(t))]; ok {
		return canonical
	}
	return t
}

// ItemTypes 所有规范条目类型，按字母序
func ItemTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, canonical := range itemTypeAliases {
		if !seen[canonical] {
			seen[canonical] = true
			types = append(types, canonical)
		}
	}
	sort.Strings(types)
	return types
}
