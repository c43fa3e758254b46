package protocol

import "time"

// SearchKey identifies one SEARCH criterion, per RFC 3501 §6.4.4.
type SearchKey int

const (
	SearchAll SearchKey = iota
	SearchAnswered
	SearchBCC
	SearchBefore
	SearchBody
	SearchCC
	SearchDeleted
	SearchDraft
	SearchFlagged
	SearchFrom
	SearchHeader
	SearchKeyword
	SearchLarger
	SearchNew
	SearchNot
	SearchOld
	SearchOn
	SearchOr
	SearchRecent
	SearchSeen
	SearchSentBefore
	SearchSentOn
	SearchSentSince
	SearchSince
	SearchSmaller
	SearchSubject
	SearchText
	SearchTo
	SearchUID
	SearchUnanswered
	SearchUndeleted
	SearchUndraft
	SearchUnflagged
	SearchUnkeyword
	SearchUnseen
	SearchSequenceSet
)

// SearchTerm is a node in a SEARCH criteria tree. Leaf nodes carry one of
// Str/Field/Date/Size/Set depending on Key; SearchNot carries exactly one
// child in Children, SearchOr carries exactly two.
type SearchTerm struct {
	Key      SearchKey
	Str      string
	Field    string // HEADER field-name
	Date     time.Time
	Size     uint64
	Set      string // compact message-set syntax, for UID/sequence-set terms
	Children []*SearchTerm
}

// needsCharset reports whether t (or any descendant) carries free text
// that might be non-ASCII, requiring the command to be prefixed with
// "CHARSET UTF-8" per RFC 3501 §6.4.4.
func (t *SearchTerm) needsCharset() bool {
	if t == nil {
		return false
	}
	switch t.Key {
	case SearchBCC, SearchBody, SearchCC, SearchFrom, SearchHeader,
		SearchSubject, SearchText, SearchTo:
		for i := 0; i < len(t.Str); i++ {
			if t.Str[i] > 0x7F {
				return true
			}
		}
	}
	for _, c := range t.Children {
		if c.needsCharset() {
			return true
		}
	}
	return false
}

// SearchNeedsUTF8Charset reports whether any leaf in the tree rooted at t
// contains a byte outside the 7-bit ASCII range, in which case the SEARCH
// command must be sent as `SEARCH CHARSET UTF-8 ...`.
func SearchNeedsUTF8Charset(t *SearchTerm) bool { return t.needsCharset() }

// searchKeywords maps each key to its wire keyword, for the subset that
// renders as a bare keyword with no arguments.
var searchKeywords = map[SearchKey]string{
	SearchAll:        "ALL",
	SearchAnswered:   "ANSWERED",
	SearchDeleted:    "DELETED",
	SearchDraft:      "DRAFT",
	SearchFlagged:    "FLAGGED",
	SearchNew:        "NEW",
	SearchOld:        "OLD",
	SearchRecent:     "RECENT",
	SearchSeen:       "SEEN",
	SearchUnanswered: "UNANSWERED",
	SearchUndeleted:  "UNDELETED",
	SearchUndraft:    "UNDRAFT",
	SearchUnflagged:  "UNFLAGGED",
	SearchUnseen:     "UNSEEN",
}

// searchStringKeywords maps each key taking one free-text argument to its
// wire keyword.
var searchStringKeywords = map[SearchKey]string{
	SearchBCC:     "BCC",
	SearchBody:    "BODY",
	SearchCC:      "CC",
	SearchFrom:    "FROM",
	SearchKeyword: "KEYWORD",
	SearchSubject: "SUBJECT",
	SearchText:    "TEXT",
	SearchTo:      "TO",
	SearchUnkeyword: "UNKEYWORD",
}

// searchDateKeywords maps each key taking one date argument to its wire
// keyword.
var searchDateKeywords = map[SearchKey]string{
	SearchBefore:     "BEFORE",
	SearchOn:         "ON",
	SearchSentBefore: "SENTBEFORE",
	SearchSentOn:     "SENTON",
	SearchSentSince:  "SENTSINCE",
	SearchSince:      "SINCE",
}

// WriteSearchTerm appends t's wire encoding to c, recursing for NOT/OR.
func WriteSearchTerm(c *Command, t *SearchTerm) {
	// Free-text arguments that would fit an atom are still quoted; keyword
	// (flag) names stay atoms. Other text takes AppendString's form.
	text := func(s string) {
		if classifyStringForm(s) == formAtom && t.Key != SearchKeyword && t.Key != SearchUnkeyword {
			c.AppendQuoted(s)
		} else {
			c.AppendString(s)
		}
	}
	switch t.Key {
	case SearchNot:
		c.AppendAtom("NOT").Space()
		WriteSearchTerm(c, t.Children[0])
		return
	case SearchOr:
		c.AppendAtom("OR").Space()
		WriteSearchTerm(c, t.Children[0])
		c.Space()
		WriteSearchTerm(c, t.Children[1])
		return
	case SearchHeader:
		c.AppendAtom("HEADER").Space()
		text(t.Field)
		c.Space()
		text(t.Str)
		return
	case SearchLarger:
		c.AppendAtom("LARGER").Space().Raw(uitoa(t.Size))
		return
	case SearchSmaller:
		c.AppendAtom("SMALLER").Space().Raw(uitoa(t.Size))
		return
	case SearchUID:
		c.AppendAtom("UID").Space().Raw(t.Set)
		return
	case SearchSequenceSet:
		c.Raw(t.Set)
		return
	}
	if kw, ok := searchKeywords[t.Key]; ok {
		c.AppendAtom(kw)
		return
	}
	if kw, ok := searchStringKeywords[t.Key]; ok {
		c.AppendAtom(kw).Space()
		text(t.Str)
		return
	}
	if kw, ok := searchDateKeywords[t.Key]; ok {
		c.AppendAtom(kw).Space().AppendSearchDate(t.Date)
		return
	}
}

func uitoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// And combines two or more terms into an implicit AND: RFC 3501's SEARCH
// grammar ANDs a bare space-separated list of search keys, so this just
// returns the list for the caller to write one after another.
func And(terms ...*SearchTerm) []*SearchTerm { return terms }

// Not wraps t in a NOT.
func Not(t *SearchTerm) *SearchTerm { return &SearchTerm{Key: SearchNot, Children: []*SearchTerm{t}} }

// Or combines a and b into an OR.
func Or(a, b *SearchTerm) *SearchTerm {
	return &SearchTerm{Key: SearchOr, Children: []*SearchTerm{a, b}}
}
