// Package model defines the data structures used throughout the application.
//
// The JSON tags match the wire format the admin panel already speaks, so the
// same structs are decoded from requests and encoded into responses.
package model

// Encoding is the content encoding of a FileChange.
type Encoding string

const (
	EncodingBase64 Encoding = "base64"
	EncodingUTF8   Encoding = "utf-8"
)

// Valid reports whether e is an encoding the hosting service accepts.
func (e Encoding) Valid() bool {
	return e == EncodingBase64 || e == EncodingUTF8
}

// Category is the catalog section a publish updates. It only influences the
// branch name.
type Category string

const (
	CategoryWebProjects Category = "webProjects"
	CategoryAddons      Category = "addons"
	CategoryArtworks    Category = "artworks"
)

// Categories lists every accepted category.
var Categories = []Category{CategoryWebProjects, CategoryAddons, CategoryArtworks}

// Valid reports whether c is one of Categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// FileChange is one whole file to write into the content repository.
// Path is repository-relative, e.g. "public/images/artworks/x1/a.png".
type FileChange struct {
	Path     string   `json:"path"`
	Content  string   `json:"content"`
	Encoding Encoding `json:"encoding,omitempty"`
}

// EncodingOrDefault returns the declared encoding, defaulting to utf-8.
func (f FileChange) EncodingOrDefault() Encoding {
	if f.Encoding == "" {
		return EncodingUTF8
	}
	return f.Encoding
}

// PublishRequest is the body of a publish call. It lives for one pipeline
// invocation only.
type PublishRequest struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    Category     `json:"category"`
	Files       []FileChange `json:"files"`
}

// PullRequest is what a successful publish returns.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// PullRequestSpec describes a pull request to open.
type PullRequestSpec struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// TreeEntry is one path override in a new tree.
type TreeEntry struct {
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Mode string `json:"mode"`
	Type string `json:"type"`
}

// Regular file mode and object type used for every published blob.
const (
	FileModeRegular = "100644"
	ObjectTypeBlob  = "blob"
)

// UploadedFile is the base64 payload Upload Staging hands back to the admin
// panel, which later submits it unchanged as a FileChange.
type UploadedFile struct {
	Path     string   `json:"path"`
	Content  string   `json:"content"`
	Encoding Encoding `json:"encoding"`
}

// FileChange converts the upload payload into a pipeline input.
func (u UploadedFile) FileChange() FileChange {
	return FileChange{Path: u.Path, Content: u.Content, Encoding: u.Encoding}
}
