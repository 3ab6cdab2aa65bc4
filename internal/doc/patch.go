package doc

import "encoding/json"

// Patch is a partial put body. Nil fields are left unchanged by the store.
type Patch struct {
	Title        *string
	JobID        *string
	Position     *float64
	Icon         *string
	HTMLSnapshot *string
	TiptapJSON   json.RawMessage

	// SetParent distinguishes "move to top level" from "leave parent alone".
	SetParent bool
	ParentID  *string
}

func (p Patch) WithTitle(title string) Patch {
	p.Title = &title
	return p
}

func (p Patch) WithPosition(position float64) Patch {
	p.Position = &position
	return p
}

func (p Patch) WithParent(parentID *string) Patch {
	p.SetParent = true
	if parentID != nil {
		id := *parentID
		p.ParentID = &id
	} else {
		p.ParentID = nil
	}
	return p
}

func (p Patch) WithHTML(html string) Patch {
	p.HTMLSnapshot = &html
	return p
}

func (p Patch) WithJob(jobID string) Patch {
	p.JobID = &jobID
	return p
}

// IsEmpty reports whether the patch carries no fields.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.JobID == nil && p.Position == nil && p.Icon == nil &&
		p.HTMLSnapshot == nil && len(p.TiptapJSON) == 0 && !p.SetParent
}

// MarshalJSON writes only the present fields. The parent is sent as folderId,
// with an explicit null when moving to top level.
func (p Patch) MarshalJSON() ([]byte, error) {
	body := make(map[string]any)
	if p.Title != nil {
		body["title"] = *p.Title
	}
	if p.JobID != nil {
		body["jobId"] = *p.JobID
	}
	if p.Position != nil {
		body["position"] = *p.Position
	}
	if p.Icon != nil {
		body["icon"] = *p.Icon
	}
	if p.HTMLSnapshot != nil {
		body["htmlSnapshot"] = *p.HTMLSnapshot
	}
	if len(p.TiptapJSON) > 0 {
		body["tiptapJson"] = p.TiptapJSON
	}
	if p.SetParent {
		if p.ParentID == nil {
			body["folderId"] = nil
		} else {
			body["folderId"] = *p.ParentID
		}
	}
	return json.Marshal(body)
}

// UnmarshalJSON accepts the same shape MarshalJSON produces, plus parentId as
// an alias for folderId.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	*p = Patch{}
	for key, raw := range body {
		switch key {
		case "title":
			p.Title = new(string)
			if err := json.Unmarshal(raw, p.Title); err != nil {
				return err
			}
		case "jobId":
			p.JobID = new(string)
			if err := json.Unmarshal(raw, p.JobID); err != nil {
				return err
			}
		case "position":
			p.Position = new(float64)
			if err := json.Unmarshal(raw, p.Position); err != nil {
				return err
			}
		case "icon":
			p.Icon = new(string)
			if err := json.Unmarshal(raw, p.Icon); err != nil {
				return err
			}
		case "htmlSnapshot":
			p.HTMLSnapshot = new(string)
			if err := json.Unmarshal(raw, p.HTMLSnapshot); err != nil {
				return err
			}
		case "tiptapJson":
			if string(raw) != "null" {
				p.TiptapJSON = append(json.RawMessage(nil), raw...)
			}
		case "folderId", "parentId":
			p.SetParent = true
			var parent *string
			if err := json.Unmarshal(raw, &parent); err != nil {
				return err
			}
			if parent != nil && *parent == "" {
				parent = nil
			}
			p.ParentID = parent
		}
	}
	return nil
}
