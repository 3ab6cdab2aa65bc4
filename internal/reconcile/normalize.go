// Package reconcile keeps the local page list consistent with the store across
// refreshes, optimistic edits and a changing active page.
package reconcile

import (
	"encoding/json"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"chronicle/editor/internal/doc"
	"chronicle/editor/internal/tree"
)

// Normalize coerces an untrusted store payload into a Doc. A non-string or
// blank parent becomes top level; a missing or non-finite position becomes
// (fallbackIndex+1)*100.
func Normalize(raw doc.Raw, fallbackIndex int) doc.Doc {
	d := doc.Doc{
		ID:           stringField(raw, "id"),
		Title:        doc.NormalizeTitle(stringField(raw, "title")),
		JobID:        stringField(raw, "jobId"),
		Icon:         stringField(raw, "icon"),
		HTMLSnapshot: stringField(raw, "htmlSnapshot"),
		Version:      int(numberField(raw, "version", 0)),
		CreatedAt:    timeField(raw, "createdAt"),
		UpdatedAt:    timeField(raw, "updatedAt"),
	}

	parent := stringField(raw, "folderId")
	if _, ok := raw["folderId"]; !ok {
		parent = stringField(raw, "parentId")
	}
	d.ParentID = doc.Ref(strings.TrimSpace(parent))

	d.Position = numberField(raw, "position", float64((fallbackIndex+1)*doc.PositionStep))

	if value, ok := raw["tiptapJson"]; ok && value != nil {
		if encoded, err := json.Marshal(value); err == nil {
			d.TiptapJSON = encoded
		}
	}
	return d
}

// NormalizeAll normalizes a fetched list, dropping entries without an id.
func NormalizeAll(raws []doc.Raw) []doc.Doc {
	out := make([]doc.Doc, 0, len(raws))
	for i, raw := range raws {
		d := Normalize(raw, i)
		if d.ID == "" {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Report counts the self-healing applied by HealParents.
type Report struct {
	HealedParents []string
}

// HealParents promotes to top level every doc whose parent is missing, is the
// doc itself, closes a parent cycle, or sits at depth two or deeper. The
// promotions are logged and reported; nothing else about the tree changes.
func HealParents(docs []doc.Doc, rootID string) ([]doc.Doc, Report) {
	out := doc.Clone(docs)
	var report Report
	promote := func(i int, reason string) {
		log.Printf("reconcile: promoting %s to top level (%s parent %q)", out[i].ID, reason, out[i].Parent())
		out[i].ParentID = nil
		report.HealedParents = append(report.HealedParents, out[i].ID)
	}

	known := make(map[string]bool, len(out))
	for _, d := range out {
		known[d.ID] = true
	}
	for i := range out {
		if out[i].ParentID == nil {
			continue
		}
		switch parent := *out[i].ParentID; {
		case parent == out[i].ID:
			promote(i, "self")
		case !known[parent]:
			promote(i, "missing")
		}
	}

	for i := range out {
		if out[i].ParentID == nil {
			continue
		}
		if tree.WouldCreateCycle(out, out[i].ID, out[i].ParentID) {
			promote(i, "cyclic")
		}
	}

	depth := tree.ComputeDepth(out, rootID)
	for i := range out {
		if out[i].ParentID == nil {
			continue
		}
		if d, ok := depth[*out[i].ParentID]; ok && d >= 2 {
			promote(i, "too deep")
		}
	}
	return out, report
}

func stringField(raw doc.Raw, key string) string {
	value, ok := raw[key].(string)
	if !ok {
		return ""
	}
	return value
}

func numberField(raw doc.Raw, key string, fallback float64) float64 {
	var value float64
	switch v := raw[key].(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return fallback
		}
		value = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fallback
		}
		value = parsed
	default:
		return fallback
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fallback
	}
	return value
}

func timeField(raw doc.Raw, key string) time.Time {
	value, ok := raw[key].(string)
	if !ok || value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
