package connection

import (
	"strconv"
	"strings"
	"time"

	"github.com/eslider/goimap/internal/errs"
	"github.com/eslider/goimap/internal/protocol"
)

// MailboxStatus is the merged result of SELECT/EXAMINE/STATUS untagged
// responses.
type MailboxStatus struct {
	Mode            Mode
	Messages        uint32
	Recent          uint32
	Unseen          uint32
	UIDValidity     uint32
	UIDNext         uint32
	Flags           protocol.FlagSet
	PermanentFlags  protocol.FlagSet
}

// Capability re-issues CAPABILITY and returns the refreshed set.
func (c *Conn) Capability() (map[string]bool, error) {
	if err := c.refreshCapability(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.capabilities))
	for k, v := range c.capabilities {
		out[k] = v
	}
	return out, nil
}

// List issues LIST ref pattern and returns every entry.
func (c *Conn) List(ref, pattern string) ([]protocol.ListEntry, error) {
	return c.listOrLSub("LIST", ref, pattern)
}

// LSub issues LSUB ref pattern and returns every entry.
func (c *Conn) LSub(ref, pattern string) ([]protocol.ListEntry, error) {
	return c.listOrLSub("LSUB", ref, pattern)
}

func (c *Conn) listOrLSub(verb, ref, pattern string) ([]protocol.ListEntry, error) {
	cmd := protocol.NewCommand(c.nextTag(), verb)
	cmd.Space().AppendMailbox(ref).Space().AppendMailbox(pattern)
	resp, err := c.runCommand(cmd)
	untagged := c.TakePending(labelIs(verb))
	if err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, errs.New(errs.KindCommandFailed, verb+" failed: "+resp.Text)
	}
	entries := make([]protocol.ListEntry, 0, len(untagged))
	for _, u := range untagged {
		e, err := u.List()
		if err != nil {
			return nil, errs.Wrap(errs.KindProtocol, err, "parsing "+verb)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Status issues STATUS mailbox (MESSAGES RECENT UIDNEXT UIDVALIDITY
// UNSEEN) and returns the merged result.
func (c *Conn) Status(mailbox string) (MailboxStatus, error) {
	cmd := protocol.NewCommand(c.nextTag(), "STATUS")
	cmd.Space().AppendMailbox(mailbox).Space().Raw("(MESSAGES RECENT UIDNEXT UIDVALIDITY UNSEEN)")
	resp, err := c.runCommand(cmd)
	untagged := c.TakePending(labelIs("STATUS"))
	if err != nil {
		return MailboxStatus{}, err
	}
	if resp.Status != "OK" {
		return MailboxStatus{}, errs.New(errs.KindCommandFailed, "STATUS failed: "+resp.Text)
	}
	var st MailboxStatus
	for _, u := range untagged {
		attrs, err := u.StatusAttrs()
		if err != nil {
			return MailboxStatus{}, errs.Wrap(errs.KindProtocol, err, "parsing STATUS")
		}
		st.Messages = attrs.Attrs["MESSAGES"]
		st.Recent = attrs.Attrs["RECENT"]
		st.UIDNext = attrs.Attrs["UIDNEXT"]
		st.UIDValidity = attrs.Attrs["UIDVALIDITY"]
		st.Unseen = attrs.Attrs["UNSEEN"]
	}
	return st, nil
}

// Select issues SELECT or EXAMINE and merges the response into a
// MailboxStatus. The server's actual mode (forced read-only via the
// [READ-ONLY] response code) always wins over the requested mode.
func (c *Conn) Select(mailbox string, readOnly bool) (MailboxStatus, error) {
	verb := "SELECT"
	if readOnly {
		verb = "EXAMINE"
	}
	cmd := protocol.NewCommand(c.nextTag(), verb)
	cmd.Space().AppendMailbox(mailbox)
	resp, err := c.runCommand(cmd)

	flagsResp := c.TakePending(labelIs("FLAGS"))
	existsResp := c.TakePending(func(r *protocol.Response) bool { return r.Label == "EXISTS" })
	recentResp := c.TakePending(func(r *protocol.Response) bool { return r.Label == "RECENT" })
	okResp := c.TakePending(func(r *protocol.Response) bool { return r.Kind == protocol.ResponseUntagged && r.Status == "OK" })

	if err != nil {
		return MailboxStatus{}, err
	}
	if resp.Status != "OK" {
		return MailboxStatus{}, errs.New(errs.KindCommandFailed, verb+" failed: "+resp.Text)
	}

	st := MailboxStatus{Mode: ModeReadWrite}
	if readOnly {
		st.Mode = ModeReadOnly
	}
	forcedReadOnly := false
	for _, u := range flagsResp {
		if fs, err := u.Flags(); err == nil {
			st.Flags = fs
		}
	}
	for _, u := range existsResp {
		st.Messages = u.Number
	}
	for _, u := range recentResp {
		st.Recent = u.Number
	}
	for _, u := range okResp {
		if u.Code == nil {
			continue
		}
		switch u.Code.Name {
		case "UIDVALIDITY":
			st.UIDValidity = parseFirstUint(u.Code.Args)
		case "UIDNEXT":
			st.UIDNext = parseFirstUint(u.Code.Args)
		case "UNSEEN":
			st.Unseen = parseFirstUint(u.Code.Args)
		case "PERMANENTFLAGS":
			st.PermanentFlags = protocol.NewFlagSet(u.Code.Args...)
		case "READ-ONLY":
			st.Mode = ModeReadOnly
			forcedReadOnly = true
		case "READ-WRITE":
			if !readOnly && !forcedReadOnly {
				st.Mode = ModeReadWrite
			}
		}
	}
	if resp.Code != nil {
		switch resp.Code.Name {
		case "READ-ONLY":
			st.Mode = ModeReadOnly
		case "READ-WRITE":
			if !readOnly && !forcedReadOnly {
				st.Mode = ModeReadWrite
			}
		}
	}

	c.mu.Lock()
	c.state = StateSelected
	c.selected = mailbox
	c.mode = st.Mode
	c.mu.Unlock()
	return st, nil
}

func parseFirstUint(args []string) uint32 {
	if len(args) == 0 {
		return 0
	}
	var n uint32
	for _, ch := range args[0] {
		if ch < '0' || ch > '9' {
			return n
		}
		n = n*10 + uint32(ch-'0')
	}
	return n
}

// CloseMailbox issues CLOSE, which implicitly expunges \Deleted messages
// in read-write mode.
func (c *Conn) CloseMailbox() error {
	cmd := protocol.NewCommand(c.nextTag(), "CLOSE")
	_, err := c.runCommand(cmd)
	c.mu.Lock()
	c.state = StateAuthenticated
	c.selected = ""
	c.mu.Unlock()
	return err
}

// Expunge issues EXPUNGE and returns the expunged sequence numbers in
// server order.
func (c *Conn) Expunge() ([]uint32, error) {
	cmd := protocol.NewCommand(c.nextTag(), "EXPUNGE")
	resp, err := c.runCommand(cmd)
	untagged := c.TakePending(func(r *protocol.Response) bool { return r.Label == "EXPUNGE" })
	if err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, errs.New(errs.KindCommandFailed, "EXPUNGE failed: "+resp.Text)
	}
	out := make([]uint32, 0, len(untagged))
	for _, u := range untagged {
		out = append(out, u.Number)
	}
	return out, nil
}

// FetchResult pairs a message's sequence number with its decoded items.
type FetchResult struct {
	SeqNum uint32
	Items  []*protocol.FetchItem
}

// Fetch issues FETCH <set> <profile> and returns every FETCH response.
func (c *Conn) Fetch(set string, profile *protocol.FetchProfile) ([]FetchResult, error) {
	return c.fetch("FETCH", set, profile)
}

// UIDFetch issues UID FETCH <set> <profile>.
func (c *Conn) UIDFetch(set string, profile *protocol.FetchProfile) ([]FetchResult, error) {
	return c.fetch("UID FETCH", set, profile)
}

func (c *Conn) fetch(verb, set string, profile *protocol.FetchProfile) ([]FetchResult, error) {
	cmd := protocol.NewCommand(c.nextTag(), verb)
	cmd.Space().Raw(set).Space()
	protocol.WriteFetchItems(cmd, profile)
	resp, err := c.runCommand(cmd)
	untagged := c.TakePending(func(r *protocol.Response) bool { return r.Label == "FETCH" })
	if err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, errs.New(errs.KindCommandFailed, verb+" failed: "+resp.Text)
	}
	results := make([]FetchResult, 0, len(untagged))
	for _, u := range untagged {
		attrs, err := u.Fetch()
		if err != nil {
			return nil, errs.Wrap(errs.KindProtocol, err, "parsing FETCH")
		}
		fr := FetchResult{SeqNum: u.Number}
		for _, a := range attrs {
			item, err := protocol.DecodeFetchAttr(a)
			if err != nil {
				return nil, errs.Wrap(errs.KindProtocol, err, "decoding FETCH attribute "+a.Name)
			}
			fr.Items = append(fr.Items, item)
		}
		results = append(results, fr)
	}
	return results, nil
}

// Store issues STORE <set> (+FLAGS|-FLAGS)[.SILENT] (...) and returns the
// server's resulting FETCH responses, always masking \Recent out of the
// flag set first.
func (c *Conn) Store(set string, flags protocol.FlagSet, add, silent bool) ([]FetchResult, error) {
	flags = flags.WithoutRecent()
	verb := "FLAGS"
	if add {
		verb = "+FLAGS"
	} else if !add {
		verb = "-FLAGS"
	}
	if silent {
		verb += ".SILENT"
	}
	cmd := protocol.NewCommand(c.nextTag(), "STORE")
	cmd.Space().Raw(set).Space().AppendAtom(verb).Space()
	cmd.AppendFlags(flags)
	resp, err := c.runCommand(cmd)
	untagged := c.TakePending(func(r *protocol.Response) bool { return r.Label == "FETCH" })
	if err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, errs.New(errs.KindCommandFailed, "STORE failed: "+resp.Text)
	}
	results := make([]FetchResult, 0, len(untagged))
	for _, u := range untagged {
		attrs, err := u.Fetch()
		if err != nil {
			return nil, errs.Wrap(errs.KindProtocol, err, "parsing STORE/FETCH")
		}
		fr := FetchResult{SeqNum: u.Number}
		for _, a := range attrs {
			item, err := protocol.DecodeFetchAttr(a)
			if err != nil {
				return nil, errs.Wrap(errs.KindProtocol, err, "decoding STORE/FETCH attribute "+a.Name)
			}
			fr.Items = append(fr.Items, item)
		}
		results = append(results, fr)
	}
	return results, nil
}

// UIDSeqPair is one (sequence number, UID) correlation, as returned by a
// `UID FETCH ... (UID)` call.
type UIDSeqPair struct {
	SeqNum uint32
	UID    uint32
}

// UIDFetchSeqForUID issues `UID FETCH <uid> (UID)` and returns the
// resolved sequence-number/UID pairs.
func (c *Conn) UIDFetchSeqForUID(uid uint32) ([]UIDSeqPair, error) {
	return c.uidFetchSeq(formatSetNumber32(uid))
}

// UIDFetchSeqForUIDRange issues `UID FETCH start:end (UID)`; pass end ==
// 0 to mean the LASTUID marker "*".
func (c *Conn) UIDFetchSeqForUIDRange(start, end uint32) ([]UIDSeqPair, error) {
	endStr := formatSetNumber32(end)
	if end == 0 {
		endStr = "*"
	}
	return c.uidFetchSeq(formatSetNumber32(start) + ":" + endStr)
}

func formatSetNumber32(n uint32) string { return protocol.EncodeMessageSet([]uint32{n}) }

func (c *Conn) uidFetchSeq(set string) ([]UIDSeqPair, error) {
	results, err := c.UIDFetch(set, &protocol.FetchProfile{UID: true})
	if err != nil {
		return nil, err
	}
	var pairs []UIDSeqPair
	for _, r := range results {
		for _, item := range r.Items {
			if item.Kind == protocol.FetchUIDItem {
				pairs = append(pairs, UIDSeqPair{SeqNum: r.SeqNum, UID: item.UID})
			}
		}
	}
	return pairs, nil
}

// Search issues SEARCH [CHARSET UTF-8] <term list> and returns the
// matching sequence numbers.
func (c *Conn) Search(terms []*protocol.SearchTerm, uid bool) ([]uint32, error) {
	verb := "SEARCH"
	if uid {
		verb = "UID SEARCH"
	}
	cmd := protocol.NewCommand(c.nextTag(), verb)
	needsCharset := false
	for _, t := range terms {
		if protocol.SearchNeedsUTF8Charset(t) {
			needsCharset = true
			break
		}
	}
	if needsCharset {
		cmd.Space().AppendAtom("CHARSET").Space().AppendAtom("UTF-8")
	}
	for _, t := range terms {
		cmd.Space()
		protocol.WriteSearchTerm(cmd, t)
	}
	resp, err := c.runCommand(cmd)
	untagged := c.TakePending(labelIs("SEARCH"))
	if err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, errs.New(errs.KindCommandFailed, "SEARCH failed: "+resp.Text)
	}
	var nums []uint32
	for _, u := range untagged {
		n, err := u.Search()
		if err != nil {
			return nil, errs.Wrap(errs.KindProtocol, err, "parsing SEARCH")
		}
		nums = append(nums, n...)
	}
	return nums, nil
}

// Append issues APPEND mailbox (flags) ["date"] {N}<literal>, stripping
// \Recent from the supplied flag set first (it is never client-settable).
func (c *Conn) Append(mailbox string, flags protocol.FlagSet, date time.Time, body []byte) error {
	cmd := protocol.NewCommand(c.nextTag(), "APPEND")
	cmd.Space().AppendMailbox(mailbox)
	if flags.Len() > 0 {
		cmd.Space()
		cmd.AppendFlags(flags.WithoutRecent())
	}
	if !date.IsZero() {
		cmd.Space().AppendDate(date)
	}
	cmd.Space().AppendLiteral(body)
	resp, err := c.runCommand(cmd)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return errs.New(errs.KindCommandFailed, "APPEND failed: "+resp.Text)
	}
	return nil
}

// Copy issues COPY <set> mailbox.
func (c *Conn) Copy(set, mailbox string) error {
	cmd := protocol.NewCommand(c.nextTag(), "COPY")
	cmd.Space().Raw(set).Space().AppendMailbox(mailbox)
	resp, err := c.runCommand(cmd)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return errs.New(errs.KindCommandFailed, "COPY failed: "+resp.Text)
	}
	return nil
}

func (c *Conn) simpleMailboxCommand(verb, mailbox string) error {
	cmd := protocol.NewCommand(c.nextTag(), verb)
	cmd.Space().AppendMailbox(mailbox)
	resp, err := c.runCommand(cmd)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return errs.New(errs.KindCommandFailed, verb+" failed: "+resp.Text)
	}
	return nil
}

func (c *Conn) CreateMailbox(name string) error    { return c.simpleMailboxCommand("CREATE", name) }
func (c *Conn) DeleteMailbox(name string) error     { return c.simpleMailboxCommand("DELETE", name) }
func (c *Conn) Subscribe(name string) error         { return c.simpleMailboxCommand("SUBSCRIBE", name) }
func (c *Conn) Unsubscribe(name string) error       { return c.simpleMailboxCommand("UNSUBSCRIBE", name) }

// RenameMailbox issues RENAME oldName newName.
func (c *Conn) RenameMailbox(oldName, newName string) error {
	cmd := protocol.NewCommand(c.nextTag(), "RENAME")
	cmd.Space().AppendMailbox(oldName).Space().AppendMailbox(newName)
	resp, err := c.runCommand(cmd)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return errs.New(errs.KindCommandFailed, "RENAME failed: "+resp.Text)
	}
	return nil
}

// Namespace issues NAMESPACE if the server advertises it, returning
// empty lists (not an error) when it doesn't.
func (c *Conn) Namespace() (personal, other, shared []protocol.NamespaceDescriptor, err error) {
	if !c.HasCapability("NAMESPACE") {
		return nil, nil, nil, nil
	}
	cmd := protocol.NewCommand(c.nextTag(), "NAMESPACE")
	resp, runErr := c.runCommand(cmd)
	untagged := c.TakePending(labelIs("NAMESPACE"))
	if runErr != nil {
		return nil, nil, nil, runErr
	}
	if resp.Status != "OK" {
		return nil, nil, nil, errs.New(errs.KindCommandFailed, "NAMESPACE failed: "+resp.Text)
	}
	for _, u := range untagged {
		personal, other, shared, err = u.Namespace()
		if err != nil {
			return nil, nil, nil, errs.Wrap(errs.KindProtocol, err, "parsing NAMESPACE")
		}
	}
	return personal, other, shared, nil
}

// GetACL issues GETACL mailbox, gated on the ACL capability.
func (c *Conn) GetACL(mailbox string) ([]protocol.ACLEntry, error) {
	if !c.HasCapability("ACL") {
		return nil, errs.New(errs.KindUnsupportedOperation, "server does not advertise ACL")
	}
	cmd := protocol.NewCommand(c.nextTag(), "GETACL")
	cmd.Space().AppendMailbox(mailbox)
	resp, err := c.runCommand(cmd)
	untagged := c.TakePending(labelIs("ACL"))
	if err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, errs.New(errs.KindCommandFailed, "GETACL failed: "+resp.Text)
	}
	var entries []protocol.ACLEntry
	for _, u := range untagged {
		_, es, err := u.ACL()
		if err != nil {
			return nil, errs.Wrap(errs.KindProtocol, err, "parsing ACL")
		}
		entries = append(entries, es...)
	}
	return entries, nil
}

// SetACL issues SETACL mailbox identifier rights.
func (c *Conn) SetACL(mailbox, identifier, rights string) error {
	if !c.HasCapability("ACL") {
		return errs.New(errs.KindUnsupportedOperation, "server does not advertise ACL")
	}
	cmd := protocol.NewCommand(c.nextTag(), "SETACL")
	cmd.Space().AppendMailbox(mailbox).Space().AppendString(identifier).Space().AppendString(rights)
	resp, err := c.runCommand(cmd)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return errs.New(errs.KindCommandFailed, "SETACL failed: "+resp.Text)
	}
	return nil
}

// DeleteACL issues DELETEACL mailbox identifier.
func (c *Conn) DeleteACL(mailbox, identifier string) error {
	if !c.HasCapability("ACL") {
		return errs.New(errs.KindUnsupportedOperation, "server does not advertise ACL")
	}
	cmd := protocol.NewCommand(c.nextTag(), "DELETEACL")
	cmd.Space().AppendMailbox(mailbox).Space().AppendString(identifier)
	resp, err := c.runCommand(cmd)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return errs.New(errs.KindCommandFailed, "DELETEACL failed: "+resp.Text)
	}
	return nil
}

// MyRights issues MYRIGHTS mailbox.
func (c *Conn) MyRights(mailbox string) (string, error) {
	if !c.HasCapability("ACL") {
		return "", errs.New(errs.KindUnsupportedOperation, "server does not advertise ACL")
	}
	cmd := protocol.NewCommand(c.nextTag(), "MYRIGHTS")
	cmd.Space().AppendMailbox(mailbox)
	resp, err := c.runCommand(cmd)
	untagged := c.TakePending(labelIs("MYRIGHTS"))
	if err != nil {
		return "", err
	}
	if resp.Status != "OK" {
		return "", errs.New(errs.KindCommandFailed, "MYRIGHTS failed: "+resp.Text)
	}
	var rights string
	for _, u := range untagged {
		_, r, err := u.MyRights()
		if err != nil {
			return "", errs.Wrap(errs.KindProtocol, err, "parsing MYRIGHTS")
		}
		rights = r
	}
	return rights, nil
}

// GetQuota issues GETQUOTA root, gated on the QUOTA capability.
func (c *Conn) GetQuota(root string) ([]protocol.QuotaResource, error) {
	if !c.HasCapability("QUOTA") {
		return nil, errs.New(errs.KindUnsupportedOperation, "server does not advertise QUOTA")
	}
	cmd := protocol.NewCommand(c.nextTag(), "GETQUOTA")
	cmd.Space().AppendString(root)
	resp, err := c.runCommand(cmd)
	untagged := c.TakePending(labelIs("QUOTA"))
	if err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, errs.New(errs.KindCommandFailed, "GETQUOTA failed: "+resp.Text)
	}
	var resources []protocol.QuotaResource
	for _, u := range untagged {
		_, res, err := u.Quota()
		if err != nil {
			return nil, errs.Wrap(errs.KindProtocol, err, "parsing QUOTA")
		}
		resources = append(resources, res...)
	}
	return resources, nil
}

// SetQuota issues SETACL-style SETQUOTA root (resource limit ...). The
// reference this library was modeled on emitted GETQUOTA here by
// mistake; SETQUOTA is the correct verb and the one this sends.
func (c *Conn) SetQuota(root string, limits map[string]uint64) error {
	if !c.HasCapability("QUOTA") {
		return errs.New(errs.KindUnsupportedOperation, "server does not advertise QUOTA")
	}
	cmd := protocol.NewCommand(c.nextTag(), "SETQUOTA")
	cmd.Space().AppendString(root).Space().Raw("(")
	first := true
	for name, limit := range limits {
		if !first {
			cmd.Space()
		}
		first = false
		cmd.AppendAtom(strings.ToUpper(name)).Space().Raw(strconv.FormatUint(limit, 10))
	}
	cmd.Raw(")")
	resp, err := c.runCommand(cmd)
	if err != nil {
		return err
	}
	if resp.Status != "OK" {
		return errs.New(errs.KindCommandFailed, "SETQUOTA failed: "+resp.Text)
	}
	return nil
}
