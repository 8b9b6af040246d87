package interaction

import (
	"encoding/json"
	"time"
)

// Request is the payload written to the request file for the UI to render.
//
// The canonical wire fields are id/message/predefined_options/is_markdown/
// project_root_path. Older UI builds used alternate names for the same
// concepts; those are accepted on decode and never escape this boundary.
type Request struct {
	ID                string   `json:"id"`
	Message           string   `json:"message"`
	PredefinedOptions []string `json:"predefined_options,omitempty"`
	IsMarkdown        bool     `json:"is_markdown"`
	ProjectRootPath   string   `json:"project_root_path,omitempty"`

	// ContinuePrompt is the canned reply the UI sends for its continue
	// shortcut. Filled in from config when the request file is written.
	ContinuePrompt string `json:"continue_prompt,omitempty"`
}

// UnmarshalJSON accepts the legacy field names (menu/choices for the option
// list, rich_text/chalkboard for the markdown flag) alongside the canonical
// ones.
func (r *Request) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID                string   `json:"id"`
		Message           string   `json:"message"`
		PredefinedOptions []string `json:"predefined_options"`
		Menu              []string `json:"menu"`
		Choices           []string `json:"choices"`
		IsMarkdown        *bool    `json:"is_markdown"`
		RichText          *bool    `json:"rich_text"`
		Chalkboard        *bool    `json:"chalkboard"`
		ProjectRootPath   string   `json:"project_root_path"`
		ContinuePrompt    string   `json:"continue_prompt"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.ID = aux.ID
	r.Message = aux.Message
	r.ProjectRootPath = aux.ProjectRootPath
	r.ContinuePrompt = aux.ContinuePrompt

	switch {
	case aux.PredefinedOptions != nil:
		r.PredefinedOptions = aux.PredefinedOptions
	case aux.Menu != nil:
		r.PredefinedOptions = aux.Menu
	case aux.Choices != nil:
		r.PredefinedOptions = aux.Choices
	}

	switch {
	case aux.IsMarkdown != nil:
		r.IsMarkdown = *aux.IsMarkdown
	case aux.RichText != nil:
		r.IsMarkdown = *aux.RichText
	case aux.Chalkboard != nil:
		r.IsMarkdown = *aux.Chalkboard
	}

	return nil
}

// Reply is the decoded human answer read from the response file.
type Reply struct {
	UserInput       string       `json:"user_input,omitempty"`
	SelectedOptions []string     `json:"selected_options,omitempty"`
	Attachments     []Attachment `json:"images,omitempty"`
	Metadata        *Metadata    `json:"metadata,omitempty"`
}

// Attachment is a binary payload the user attached in the dialog.
// Data carries the base64-encoded payload as written by the UI.
type Attachment struct {
	Data      string `json:"data"`
	MediaType string `json:"media_type"`
	Filename  string `json:"filename,omitempty"`
}

// Metadata describes the reply's provenance.
type Metadata struct {
	Timestamp string `json:"timestamp,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

// UnmarshalJSON accepts legacy field names for the reply shape.
func (r *Reply) UnmarshalJSON(data []byte) error {
	var aux struct {
		UserInput       *string      `json:"user_input"`
		Text            *string      `json:"text"`
		SelectedOptions []string     `json:"selected_options"`
		Selected        []string     `json:"selected"`
		Choices         []string     `json:"choices"`
		Images          []Attachment `json:"images"`
		AttachmentsAlt  []Attachment `json:"attachments"`
		Metadata        *Metadata    `json:"metadata"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch {
	case aux.UserInput != nil:
		r.UserInput = *aux.UserInput
	case aux.Text != nil:
		r.UserInput = *aux.Text
	}

	switch {
	case aux.SelectedOptions != nil:
		r.SelectedOptions = aux.SelectedOptions
	case aux.Selected != nil:
		r.SelectedOptions = aux.Selected
	case aux.Choices != nil:
		r.SelectedOptions = aux.Choices
	}

	switch {
	case aux.Images != nil:
		r.Attachments = aux.Images
	case aux.AttachmentsAlt != nil:
		r.Attachments = aux.AttachmentsAlt
	}

	r.Metadata = aux.Metadata
	return nil
}

// UnmarshalJSON accepts legacy field names for attachments.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	var aux struct {
		Data      string `json:"data"`
		Base64    string `json:"base64"`
		MediaType string `json:"media_type"`
		MimeType  string `json:"mime_type"`
		Filename  string `json:"filename"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	a.Data = aux.Data
	if a.Data == "" {
		a.Data = aux.Base64
	}
	a.MediaType = aux.MediaType
	if a.MediaType == "" {
		a.MediaType = aux.MimeType
	}
	a.Filename = aux.Filename
	if a.Filename == "" {
		a.Filename = aux.Name
	}
	return nil
}

// Status is a task's position in the interaction state machine.
type Status int

const (
	// StatusPending means the UI is (believed to be) open and unanswered.
	StatusPending Status = iota
	// StatusReady means a non-empty response file was observed; terminal,
	// consumed exactly once.
	StatusReady
	// StatusAbandoned means the UI process died without writing a response;
	// terminal.
	StatusAbandoned
)

// Task is one pending human interaction.
type Task struct {
	ID           string    `json:"task_id"`
	RequestFile  string    `json:"request_file"`
	ResponseFile string    `json:"response_file"`
	UIPID        int       `json:"ui_pid,omitempty"`
	CreatedAt    time.Time `json:"-"`
}
