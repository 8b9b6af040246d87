package history

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/handoff/interaction"
	"github.com/zhubert/handoff/logger"
	"github.com/zhubert/handoff/paths"
)

// Store journals answered interactions to disk, one directory per entry:
//
//	<base>/<timestamp>-<id>/
//	    meta.json    request + sanitized response (no image payloads)
//	    entry.md     human-readable rendering
//	    images/      decoded attachments, when any were embedded
type Store struct {
	baseDir string
	log     *slog.Logger
}

// NewStore creates a history store rooted at baseDir. Empty means the
// standard history directory.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		dir, err := paths.HistoryDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve history dir: %w", err)
		}
		baseDir = dir
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}
	return &Store{
		baseDir: baseDir,
		log:     logger.WithComponent("history"),
	}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// imageMeta is the sanitized attachment record kept in meta.json: the payload
// itself goes to the images/ directory, not into JSON.
type imageMeta struct {
	MediaType string `json:"media_type"`
	Filename  string `json:"filename,omitempty"`
	Stored    string `json:"stored,omitempty"`
}

// Meta is the meta.json shape.
type Meta struct {
	ID        string                `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Request   *interaction.Request  `json:"request,omitempty"`
	UserInput string                `json:"user_input,omitempty"`
	Selected  []string              `json:"selected_options,omitempty"`
	Images    []imageMeta           `json:"images,omitempty"`
	Metadata  *interaction.Metadata `json:"metadata,omitempty"`
}

// Entry is one journaled interaction as returned by List and Get.
type Entry struct {
	Meta
	Dir string `json:"-"`
}

// extForMediaType maps an attachment media type to a file extension.
func extForMediaType(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}

// Save journals one answered interaction. The raw response is decoded here
// rather than taking pre-parsed content so the journal reflects what the UI
// actually wrote.
func (s *Store) Save(req *interaction.Request, response json.RawMessage) error {
	decoded := interaction.DecodeResponse(response)
	if decoded.State == interaction.ResponseEmpty || decoded.State == interaction.ResponseCancelled {
		return nil
	}

	now := time.Now()
	id := uuid.NewString()[:8]
	dir := filepath.Join(s.baseDir, now.Format("20060102-150405")+"-"+id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create entry dir: %w", err)
	}

	meta := Meta{
		ID:        id,
		Timestamp: now,
		Request:   req,
	}
	if decoded.Reply != nil {
		meta.UserInput = decoded.Reply.UserInput
		meta.Selected = decoded.Reply.SelectedOptions
		meta.Metadata = decoded.Reply.Metadata
		meta.Images = s.storeImages(dir, decoded.Reply.Attachments)
	} else {
		meta.UserInput = decoded.Raw
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "entry.md"), renderMarkdown(meta), 0644); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	s.log.Debug("journaled interaction", "dir", dir)
	return nil
}

// storeImages writes decodable attachments to the entry's images/ directory
// and returns their sanitized records. Attachments that fail to decode are
// recorded without a stored file.
func (s *Store) storeImages(entryDir string, attachments []interaction.Attachment) []imageMeta {
	var metas []imageMeta
	imagesDir := filepath.Join(entryDir, "images")
	for _, att := range attachments {
		m := imageMeta{MediaType: att.MediaType, Filename: att.Filename}
		payload, err := base64.StdEncoding.DecodeString(att.Data)
		if err == nil {
			if err := os.MkdirAll(imagesDir, 0755); err == nil {
				name := uuid.NewString()[:8] + extForMediaType(att.MediaType)
				if err := os.WriteFile(filepath.Join(imagesDir, name), payload, 0644); err == nil {
					m.Stored = filepath.Join("images", name)
				}
			}
		}
		metas = append(metas, m)
	}
	return metas
}

// renderMarkdown builds the human-readable entry.md.
func renderMarkdown(meta Meta) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Interaction %s\n\n", meta.Timestamp.Format(time.RFC3339))

	if meta.Request != nil && meta.Request.Message != "" {
		b.WriteString("## Prompt\n\n")
		b.WriteString(meta.Request.Message)
		b.WriteString("\n\n")
		if len(meta.Request.PredefinedOptions) > 0 {
			b.WriteString("Options offered:\n\n")
			for _, opt := range meta.Request.PredefinedOptions {
				fmt.Fprintf(&b, "- %s\n", opt)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Response\n\n")
	if len(meta.Selected) > 0 {
		fmt.Fprintf(&b, "Selected: %s\n\n", strings.Join(meta.Selected, ", "))
	}
	if meta.UserInput != "" {
		b.WriteString(meta.UserInput)
		b.WriteString("\n")
	}
	for _, img := range meta.Images {
		if img.Stored != "" {
			fmt.Fprintf(&b, "\n![attachment](%s)\n", img.Stored)
		}
	}
	return []byte(b.String())
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) List(limit int) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history dir: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		entry, err := s.readEntry(filepath.Join(s.baseDir, de.Name()))
		if err != nil {
			s.log.Warn("skipping unreadable history entry", "dir", de.Name(), "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (Entry, error) {
	dirEntries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read history dir: %w", err)
	}
	for _, de := range dirEntries {
		if !de.IsDir() || !strings.HasSuffix(de.Name(), "-"+id) {
			continue
		}
		return s.readEntry(filepath.Join(s.baseDir, de.Name()))
	}
	return Entry{}, fmt.Errorf("history entry %s not found", id)
}

func (s *Store) readEntry(dir string) (Entry, error) {
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return Entry{}, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Entry{}, err
	}
	return Entry{Meta: meta, Dir: dir}, nil
}
