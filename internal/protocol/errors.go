package protocol

import "github.com/rotisserie/eris"

// ErrProtocol is the sentinel wrapped by every malformed-response error
// raised while reading or parsing the wire format. Callers compare with
// eris.Is(err, protocol.ErrProtocol).
var ErrProtocol = eris.New("imap: protocol error")
