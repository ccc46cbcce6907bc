package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Fingerprint returns a content key for deduplicating operations that were
// dispatched more than once under different IDs:
// "kind:target:value-or-formula:format-digest".
// Composite operations fold the fingerprints of their children into the last
// segment so that two batches only collide when every child does.
func Fingerprint(op *Operation) string {
	if op == nil {
		return ""
	}

	target := op.PrimaryTarget()
	if op.Sheet != "" && !strings.Contains(target, "!") && !op.Kind.IsSheetLevel() {
		target = op.Sheet + "!" + target
	}

	value := op.Formula
	if value == "" && op.Value != nil {
		value = fmt.Sprint(op.Value)
	}

	var digest string
	if op.Kind.IsComposite() {
		children := make([]string, len(op.Operations))
		for i, child := range op.Operations {
			children[i] = Fingerprint(child)
		}
		digest = shortHash([]byte(strings.Join(children, "|")))
	} else {
		digest = formatDigest(op)
	}

	return fmt.Sprintf("%s:%s:%s:%s", op.Kind, target, value, digest)
}

// formatDigest hashes the fields that are not covered by target and value.
func formatDigest(op *Operation) string {
	payload := struct {
		Format     *FormatSnapshot `json:"f,omitempty"`
		Name       string          `json:"n,omitempty"`
		ChartType  string          `json:"c,omitempty"`
		SortColumn int             `json:"s,omitempty"`
		Descending bool            `json:"d,omitempty"`
		Criteria   string          `json:"q,omitempty"`
		ClearMode  ClearMode       `json:"m,omitempty"`
		Settings   map[string]any  `json:"x,omitempty"`
	}{op.Format, op.Name, op.ChartType, op.SortColumn, op.Descending, op.Criteria, op.ClearMode, op.Settings}

	data, err := json.Marshal(payload)
	if err != nil || string(data) == "{}" {
		return ""
	}
	return shortHash(data)
}

func shortHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])[:16]
}
