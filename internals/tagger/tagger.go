// Package tagger writes ID3v2 tags into downloaded episodes.
package tagger

import (
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/pkg/errors"
)

// frameIDs maps the tag keys accepted in the configuration to ID3v2.4
// text frames. Other keys are written as user defined TXXX frames.
var frameIDs = map[string]string{
	"title":        "TIT2",
	"artist":       "TPE1",
	"album":        "TALB",
	"albumartist":  "TPE2",
	"genre":        "TCON",
	"date":         "TDRC",
	"tracknumber":  "TRCK",
	"discnumber":   "TPOS",
	"composer":     "TCOM",
	"copyright":    "TCOP",
	"language":     "TLAN",
	"encodedby":    "TENC",
	"bpm":          "TBPM",
	"lyricist":     "TEXT",
	"organization": "TPUB",
}

const commentKey = "comment"

// ID3 opens media files for tagging.
type ID3 struct {
	extensions map[string]bool
}

// New returns an ID3 tagger for .mp3 files.
func New() *ID3 {
	return &ID3{extensions: map[string]bool{".mp3": true}}
}

// Supports reports whether path can carry ID3 tags.
func (t *ID3) Supports(path string) bool {
	return t.extensions[strings.ToLower(filepath.Ext(path))]
}

// Tag is one key/value pair to write.
type Tag struct {
	Key   string
	Value string
}

// WriteTags opens path, sets tags in order and saves the file.
func (t *ID3) WriteTags(path string, tags []Tag) (err error) {
	f, err := t.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	for _, tag := range tags {
		if err := f.Set(tag.Key, tag.Value); err != nil {
			return errors.Wrapf(err, "set tag %q", tag.Key)
		}
	}
	return f.Save()
}

// File is an opened media file. Set calls are buffered until Save.
type File struct {
	path string
	tag  *id3v2.Tag
}

// Open parses the existing tag of path, or starts an empty one.
func (t *ID3) Open(path string) (*File, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s for tagging", path)
	}
	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	return &File{path: path, tag: tag}, nil
}

// Set replaces the value of key.
func (f *File) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return errors.New("empty tag key")
	}
	if key == commentKey {
		f.tag.DeleteFrames(f.tag.CommonID("Comments"))
		f.tag.AddCommentFrame(id3v2.CommentFrame{
			Encoding: id3v2.EncodingUTF8,
			Language: "eng",
			Text:     value,
		})
		return nil
	}
	if id, ok := frameIDs[key]; ok {
		f.tag.DeleteFrames(id)
		f.tag.AddTextFrame(id, id3v2.EncodingUTF8, value)
		return nil
	}
	f.setUserDefined(key, value)
	return nil
}

func (f *File) setUserDefined(key, value string) {
	const id = "TXXX"
	var keep []id3v2.UserDefinedTextFrame
	for _, fr := range f.tag.GetFrames(id) {
		udtf, ok := fr.(id3v2.UserDefinedTextFrame)
		if ok && udtf.Description != key {
			keep = append(keep, udtf)
		}
	}
	f.tag.DeleteFrames(id)
	for _, udtf := range keep {
		f.tag.AddUserDefinedTextFrame(udtf)
	}
	f.tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
		Encoding:    id3v2.EncodingUTF8,
		Description: key,
		Value:       value,
	})
}

// Save writes the tag to the file.
func (f *File) Save() error {
	if err := f.tag.Save(); err != nil {
		return errors.Wrapf(err, "save tags of %s", f.path)
	}
	return nil
}

// Close releases the file.
func (f *File) Close() error {
	return f.tag.Close()
}
