package model

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// AliasStrings decodes the entity's alias set. A missing or malformed
// column reads as empty.
func (e *Entity) AliasStrings() []string {
	if len(e.Aliases) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(e.Aliases, &out); err != nil {
		return nil
	}
	return out
}

func AliasesJSON(aliases []string) datatypes.JSON {
	if len(aliases) == 0 {
		return datatypes.JSON([]byte("[]"))
	}
	data, err := json.Marshal(aliases)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(data)
}

// MergeAliases unions both alias sets plus the duplicate's display value.
// The canonical's own display value is not recorded as its alias.
func MergeAliases(canonical, duplicate Entity) []string {
	seen := map[string]bool{
		canonical.DisplayValue: true,
	}
	var out []string
	add := func(a string) {
		if a == "" || seen[a] {
			return
		}
		seen[a] = true
		out = append(out, a)
	}
	for _, a := range canonical.AliasStrings() {
		add(a)
	}
	for _, a := range duplicate.AliasStrings() {
		add(a)
	}
	add(duplicate.DisplayValue)
	return out
}
