package domain

import (
	"encoding/json"
	"strings"
)

// Element is one node of rich message content
type Element interface {
	flatten(mentions map[string]string) string
}

type TextElement struct{ Text string }

type MentionElement struct {
	UserID string // mention key or open_id
	Name   string
}

type LinkElement struct {
	Text string
	Href string
}

type ImageElement struct{ ImageKey string }

type MediaElement struct {
	FileKey  string
	FileName string
}

type EmojiElement struct{ EmojiType string }

// UnknownElement keeps tags this bridge does not understand
type UnknownElement struct{ Tag string }

func (e TextElement) flatten(map[string]string) string { return e.Text }

func (e MentionElement) flatten(mentions map[string]string) string {
	if name, ok := mentions[e.UserID]; ok && name != "" {
		return "@" + name
	}
	if e.Name != "" {
		return "@" + e.Name
	}
	if e.UserID == "all" {
		return "@all"
	}
	if strings.HasPrefix(e.UserID, "@") {
		return e.UserID
	}
	return "@" + e.UserID
}

func (e LinkElement) flatten(map[string]string) string {
	switch {
	case e.Text != "" && e.Href != "" && e.Text != e.Href:
		return e.Text + " (" + e.Href + ")"
	case e.Href != "":
		return e.Href
	default:
		return e.Text
	}
}

func (e ImageElement) flatten(map[string]string) string { return "[image]" }

func (e MediaElement) flatten(map[string]string) string {
	if e.FileName != "" {
		return "[file: " + e.FileName + "]"
	}
	return "[media]"
}

func (e EmojiElement) flatten(map[string]string) string {
	if e.EmojiType == "" {
		return "[emoji]"
	}
	return ":" + e.EmojiType + ":"
}

func (e UnknownElement) flatten(map[string]string) string {
	if e.Tag == "" {
		return "[unsupported]"
	}
	return "[" + e.Tag + "]"
}

// PostContent is a parsed rich-text message
type PostContent struct {
	Title string
	Lines [][]Element
}

// ImageKeys returns the keys of every embedded image in document order
func (p PostContent) ImageKeys() []string {
	var keys []string
	for _, line := range p.Lines {
		for _, el := range line {
			if img, ok := el.(ImageElement); ok && img.ImageKey != "" {
				keys = append(keys, img.ImageKey)
			}
		}
	}
	return keys
}

// Flatten renders the post as plain text with inline markers for media
func (p PostContent) Flatten(mentions map[string]string) string {
	var parts []string
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	for _, line := range p.Lines {
		var b strings.Builder
		for _, el := range line {
			b.WriteString(el.flatten(mentions))
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

type rawPostElement struct {
	Tag       string `json:"tag"`
	Text      string `json:"text"`
	Href      string `json:"href"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	ImageKey  string `json:"image_key"`
	FileKey   string `json:"file_key"`
	FileName  string `json:"file_name"`
	EmojiType string `json:"emoji_type"`
}

type rawPostBody struct {
	Title   string             `json:"title"`
	Content [][]rawPostElement `json:"content"`
}

// ParsePost decodes post content. Both the flat shape delivered by events and
// the locale-wrapped shape ({"zh_cn": {...}}) are accepted.
func ParsePost(raw string) (PostContent, bool) {
	var body rawPostBody
	if err := json.Unmarshal([]byte(raw), &body); err == nil && (body.Title != "" || len(body.Content) > 0) {
		return convertPost(body), true
	}
	var localized map[string]rawPostBody
	if err := json.Unmarshal([]byte(raw), &localized); err != nil {
		return PostContent{}, false
	}
	for _, locale := range []string{"zh_cn", "en_us", "ja_jp"} {
		if b, ok := localized[locale]; ok {
			return convertPost(b), true
		}
	}
	for _, b := range localized {
		return convertPost(b), true
	}
	return PostContent{}, false
}

func convertPost(body rawPostBody) PostContent {
	post := PostContent{Title: body.Title}
	for _, line := range body.Content {
		elements := make([]Element, 0, len(line))
		for _, raw := range line {
			elements = append(elements, convertElement(raw))
		}
		post.Lines = append(post.Lines, elements)
	}
	return post
}

func convertElement(raw rawPostElement) Element {
	switch raw.Tag {
	case "text", "md", "code_block":
		return TextElement{Text: raw.Text}
	case "at":
		return MentionElement{UserID: raw.UserID, Name: raw.UserName}
	case "a":
		return LinkElement{Text: raw.Text, Href: raw.Href}
	case "img":
		return ImageElement{ImageKey: raw.ImageKey}
	case "media":
		return MediaElement{FileKey: raw.FileKey, FileName: raw.FileName}
	case "emotion":
		return EmojiElement{EmojiType: raw.EmojiType}
	case "hr":
		return TextElement{Text: "---"}
	default:
		return UnknownElement{Tag: raw.Tag}
	}
}

// ExtractedContent is the plain-text view of a message plus its media references
type ExtractedContent struct {
	Text      string
	ImageKeys []string
	FileKey   string
	FileName  string
}

// HasMedia reports whether the content references downloadable media
func (c ExtractedContent) HasMedia() bool {
	return len(c.ImageKeys) > 0 || c.FileKey != ""
}

// ExtractContent flattens raw message content of any kind. It never fails:
// undecodable payloads degrade to a placeholder.
func ExtractContent(kind ContentKind, raw string, mentions []Mention) ExtractedContent {
	names := make(map[string]string, len(mentions)*2)
	for _, m := range mentions {
		if m.Name == "" {
			continue
		}
		if m.Key != "" {
			names[m.Key] = m.Name
		}
		if m.ID != "" {
			names[m.ID] = m.Name
		}
	}

	switch kind {
	case ContentText:
		var parsed struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return ExtractedContent{Text: raw}
		}
		return ExtractedContent{Text: ReplaceMentionKeys(parsed.Text, mentions)}
	case ContentPost:
		post, ok := ParsePost(raw)
		if !ok {
			return ExtractedContent{Text: "[rich text]"}
		}
		return ExtractedContent{
			Text:      ReplaceMentionKeys(post.Flatten(names), mentions),
			ImageKeys: post.ImageKeys(),
		}
	case ContentImage:
		var parsed struct {
			ImageKey string `json:"image_key"`
		}
		_ = json.Unmarshal([]byte(raw), &parsed)
		out := ExtractedContent{Text: "[image]"}
		if parsed.ImageKey != "" {
			out.ImageKeys = []string{parsed.ImageKey}
		}
		return out
	case ContentFile, ContentAudio, ContentMedia:
		var parsed struct {
			FileKey  string `json:"file_key"`
			FileName string `json:"file_name"`
		}
		_ = json.Unmarshal([]byte(raw), &parsed)
		label := "[" + string(kind) + "]"
		if parsed.FileName != "" {
			label = "[" + string(kind) + ": " + parsed.FileName + "]"
		}
		return ExtractedContent{Text: label, FileKey: parsed.FileKey, FileName: parsed.FileName}
	case ContentSticker:
		return ExtractedContent{Text: "[sticker]"}
	case ContentInteractive:
		return ExtractedContent{Text: "[card]"}
	default:
		if kind == "" {
			return ExtractedContent{Text: "[unsupported]"}
		}
		return ExtractedContent{Text: "[" + string(kind) + "]"}
	}
}

// ReplaceMentionKeys swaps @_user_N placeholders for @Name
func ReplaceMentionKeys(text string, mentions []Mention) string {
	for _, m := range mentions {
		if m.Key == "" || m.Name == "" {
			continue
		}
		text = strings.ReplaceAll(text, m.Key, "@"+m.Name)
	}
	return text
}
