// Package folder classifies IMAP mailbox listings into the meanings the
// configuration pipeline cares about and locates the dedicated "moved
// messages" folder this client creates.
package folder

import "strings"

// Meaning is the role the pipeline assigns to a folder after classification.
type Meaning int

const (
	Unknown Meaning = iota
	SentObjects
	Other
)

// Attr is a server-assigned RFC 6154 SPECIAL-USE mailbox attribute, or the
// IMAP4rev1 \Noselect/\HasChildren family reported alongside it.
type Attr string

const (
	AttrAll     Attr = "\\All"
	AttrArchive Attr = "\\Archive"
	AttrDrafts  Attr = "\\Drafts"
	AttrFlagged Attr = "\\Flagged"
	AttrJunk    Attr = "\\Junk"
	AttrSent    Attr = "\\Sent"
	AttrSpam    Attr = "\\Spam"
	AttrTrash   Attr = "\\Trash"
)

// Info is one LIST response entry: a folder name, its server-assigned
// attribute labels, and the hierarchy delimiter the server reports for it.
type Info struct {
	Name      string
	Delimiter string
	Attrs     []Attr
}

// otherAttrs are special-use labels that remove a folder from
// consideration as a Sent-like folder entirely.
var otherAttrs = map[Attr]bool{
	AttrSpam:   true,
	AttrTrash:  true,
	AttrDrafts: true,
	AttrJunk:   true,
}

// sentNames is the case-insensitive fallback name list used when no
// SPECIAL-USE attribute is present. Extensible: add further localized
// names here as they are discovered in the wild.
var sentNames = []string{"sent", "sent objects", "gesendet"}

// Classify assigns a Meaning: attribute labels win, then name fallback.
func Classify(info Info) Meaning {
	for _, a := range info.Attrs {
		if otherAttrs[a] {
			return Other
		}
	}
	for _, a := range info.Attrs {
		if a == AttrSent {
			return SentObjects
		}
	}

	name := strings.ToLower(info.Name)
	for _, candidate := range sentNames {
		if name == candidate {
			return SentObjects
		}
	}
	return Unknown
}

// DiagnosticType is a richer, supplemental classification used only for
// diagnostic logging/status output (never for selecting Sent or MVBOX,
// which remain governed exclusively by Classify/Meaning).
type DiagnosticType string

const (
	DiagInbox   DiagnosticType = "inbox"
	DiagSent    DiagnosticType = "sent"
	DiagDrafts  DiagnosticType = "drafts"
	DiagTrash   DiagnosticType = "trash"
	DiagSpam    DiagnosticType = "spam"
	DiagArchive DiagnosticType = "archive"
	DiagAll     DiagnosticType = "all"
	DiagFlagged DiagnosticType = "flagged"
	DiagPlain   DiagnosticType = "folder"
)

// Diagnose reports the RFC 6154 special-use type of a folder for logging,
// recognizing the full attribute set (including \All, \Archive, \Flagged)
// that Classify deliberately ignores.
func Diagnose(info Info) DiagnosticType {
	if strings.EqualFold(info.Name, "INBOX") {
		return DiagInbox
	}
	for _, a := range info.Attrs {
		switch a {
		case AttrAll:
			return DiagAll
		case AttrArchive:
			return DiagArchive
		case AttrDrafts:
			return DiagDrafts
		case AttrJunk, AttrSpam:
			return DiagSpam
		case AttrSent:
			return DiagSent
		case AttrTrash:
			return DiagTrash
		case AttrFlagged:
			return DiagFlagged
		}
	}
	return DiagPlain
}

// MvboxName is the fixed name the client first tries for the moved-messages
// folder.
const MvboxName = "DeltaChat"

// MvboxFallbackName returns "INBOX<delim>DeltaChat" for the given
// hierarchy delimiter, the fallback path used when a top-level DeltaChat
// folder cannot be created.
func MvboxFallbackName(delimiter string) string {
	if delimiter == "" {
		delimiter = "/"
	}
	return "INBOX" + delimiter + MvboxName
}

// FindMvbox returns the name of an existing moved-messages folder among
// listing, matching either the fixed name or the INBOX<delim>DeltaChat
// fallback path, and whether one was found.
func FindMvbox(listing []Info) (string, bool) {
	for _, info := range listing {
		if info.Name == MvboxName {
			return info.Name, true
		}
	}
	for _, info := range listing {
		if info.Name == MvboxFallbackName(info.Delimiter) {
			return info.Name, true
		}
	}
	return "", false
}
