package protocol

// FetchProfile describes which FETCH items to request for a batch of
// messages: a set of well-known items plus zero or more explicit body
// sections.
type FetchProfile struct {
	Flags         bool
	Envelope      bool
	BodyStructure bool
	InternalDate  bool
	Size          bool // RFC822.SIZE
	UID           bool

	Sections []FetchSection
}

// FetchSection pairs a BodySection with whether it should be requested
// via BODY.PEEK (not marking \Seen) or BODY (marking \Seen).
type FetchSection struct {
	Section *BodySection
	Peek    bool
}

// NewFetchProfile returns an empty profile; callers set the fields and
// append sections they need before calling WriteFetchItems.
func NewFetchProfile() *FetchProfile { return &FetchProfile{} }

// WithSection adds a body section request to the profile and returns it,
// for fluent construction.
func (p *FetchProfile) WithSection(sec *BodySection, peek bool) *FetchProfile {
	p.Sections = append(p.Sections, FetchSection{Section: sec, Peek: peek})
	return p
}

// WriteFetchItems appends the FETCH command's parenthesized item list to
// c, translating the profile into the wire names the server expects.
func WriteFetchItems(c *Command, p *FetchProfile) {
	var items []func(*Command)
	if p.Flags {
		items = append(items, func(c *Command) { c.AppendAtom("FLAGS") })
	}
	if p.Envelope {
		items = append(items, func(c *Command) { c.AppendAtom("ENVELOPE") })
	}
	if p.BodyStructure {
		items = append(items, func(c *Command) { c.AppendAtom("BODYSTRUCTURE") })
	}
	if p.InternalDate {
		items = append(items, func(c *Command) { c.AppendAtom("INTERNALDATE") })
	}
	if p.Size {
		items = append(items, func(c *Command) { c.AppendAtom("RFC822.SIZE") })
	}
	if p.UID {
		items = append(items, func(c *Command) { c.AppendAtom("UID") })
	}
	for _, s := range p.Sections {
		sec := s
		items = append(items, func(c *Command) { c.AppendBodySection(sec.Section, sec.Peek) })
	}

	c.Raw("(")
	for i, fn := range items {
		if i > 0 {
			c.Space()
		}
		fn(c)
	}
	c.Raw(")")
}

// StandardProfile returns the profile used for the common "headers and
// flags only" listing pass: FLAGS, UID, INTERNALDATE, and RFC822.SIZE,
// deferring ENVELOPE/BODYSTRUCTURE/body sections to on-demand fetches.
func StandardProfile() *FetchProfile {
	return &FetchProfile{Flags: true, UID: true, InternalDate: true, Size: true}
}

// FullProfile returns the profile requesting everything needed to
// populate a Message's metadata without its body sections.
func FullProfile() *FetchProfile {
	return &FetchProfile{Flags: true, Envelope: true, BodyStructure: true, InternalDate: true, Size: true, UID: true}
}
