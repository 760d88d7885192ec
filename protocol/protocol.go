// Package protocol parses and dispatches the memcached-style text command
// set over latchkv's five-operation storage contract. It is grounded in
// Afina's Execute:: command hierarchy (Command.cpp and the per-command
// headers in include/afina/execute/): each command type there parses its
// own argument line and calls back into Storage; this package keeps that
// one-command-per-line shape but collapses the class-per-command hierarchy
// into a single parse+dispatch pass, since Go has no need for a virtual
// Execute method per command to get the same behavior.
//
// Bit-exact wire framing (pipelining boundaries, partial reads) is left to
// the caller (see server/tcp and server/epoll): this package only knows how
// to turn one already-delimited command line, plus its data block for
// storage commands, into a reply line.
package protocol

import (
	"errors"
	"strconv"
	"strings"

	"github.com/latchkv/latchkv"
)

// Verb identifies which of the seven memcached-style commands a Command
// carries.
type Verb int

const (
	// VerbGet corresponds to "get <key>".
	VerbGet Verb = iota
	// VerbSet corresponds to "set <key> <flags> <exptime> <bytes> [noreply]".
	VerbSet
	// VerbAdd corresponds to "add" (Cache.Add / PutIfAbsent).
	VerbAdd
	// VerbReplace corresponds to "replace" (Cache.Replace / Set).
	VerbReplace
	// VerbAppend corresponds to "append" (Cache.Append).
	VerbAppend
	// VerbPrepend corresponds to "prepend" (Cache.Prepend).
	VerbPrepend
	// VerbDelete corresponds to "delete <key> [noreply]".
	VerbDelete
)

var verbNames = map[string]Verb{
	"get":     VerbGet,
	"set":     VerbSet,
	"add":     VerbAdd,
	"replace": VerbReplace,
	"append":  VerbAppend,
	"prepend": VerbPrepend,
	"delete":  VerbDelete,
}

// storageVerbs is the set of verbs that carry a data block (everything but
// get/delete), mirroring InsertCommand's subclasses in the original.
var storageVerbs = map[Verb]bool{
	VerbSet:     true,
	VerbAdd:     true,
	VerbReplace: true,
	VerbAppend:  true,
	VerbPrepend: true,
}

// ErrUnknownCommand is returned by ParseHeader when the first token is not
// one of the seven recognized verbs.
var ErrUnknownCommand = errors.New("protocol: unknown command")

// ErrMalformed is returned by ParseHeader when a recognized verb's argument
// line does not have the expected token count, mirroring
// Command::ExtractArguments throwing on a bad split.
var ErrMalformed = errors.New("protocol: malformed command line")

// Header is the result of parsing a command's first line: its verb, key,
// and (for storage verbs) how many bytes of data block follow on the next
// line. Flags and exptime are accepted for wire compatibility but are
// otherwise inert — latchkv has no flags/exptime semantics (spec.md
// Non-goals exclude expiry-by-time).
type Header struct {
	Verb    Verb
	Key     string
	Flags   uint32
	Bytes   int
	NoReply bool
}

// NeedsData reports whether this header's command is followed by a
// data-block line (set/add/replace/append/prepend) as opposed to being
// self-contained (get/delete).
func (h Header) NeedsData() bool { return storageVerbs[h.Verb] }

// ParseHeader parses one command line (without its trailing CRLF). The
// original's Command::ExtractArguments strips a trailing " noreply" token
// before splitting the rest on whitespace; this does the same.
func ParseHeader(line string) (Header, error) {
	line, noReply := stripNoReply(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Header{}, ErrUnknownCommand
	}

	verb, ok := verbNames[fields[0]]
	if !ok {
		return Header{}, ErrUnknownCommand
	}

	switch verb {
	case VerbGet, VerbDelete:
		if len(fields) != 2 {
			return Header{}, ErrMalformed
		}
		return Header{Verb: verb, Key: fields[1], NoReply: noReply}, nil
	default:
		// set/add/replace/append/prepend <key> <flags> <exptime> <bytes>
		if len(fields) != 5 {
			return Header{}, ErrMalformed
		}
		flags, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return Header{}, ErrMalformed
		}
		n, err := strconv.Atoi(fields[4])
		if err != nil || n < 0 {
			return Header{}, ErrMalformed
		}
		return Header{
			Verb:    verb,
			Key:     fields[1],
			Flags:   uint32(flags),
			Bytes:   n,
			NoReply: noReply,
		}, nil
	}
}

func stripNoReply(line string) (string, bool) {
	const suffix = " noreply"
	if strings.HasSuffix(line, suffix) {
		return line[:len(line)-len(suffix)], true
	}
	return line, false
}

// Reply is a fully rendered line-based response, ready to write to the
// wire verbatim (including its trailing CRLF). For "get", Bytes includes
// the VALUE header, the data block, and the terminating END line, matching
// the contract in spec.md §6.
type Reply struct {
	text    string
	suppress bool
}

// Suppressed reports whether this Reply should be withheld entirely,
// because the request carried the "noreply" suffix.
func (r Reply) Suppressed() bool { return r.suppress }

// Bytes renders the reply, or nil if Suppressed.
func (r Reply) Bytes() []byte {
	if r.suppress {
		return nil
	}
	return []byte(r.text)
}

const crlf = "\r\n"

func textReply(s string, noReply bool) Reply {
	return Reply{text: s + crlf, suppress: noReply}
}

// Dispatch executes one already-parsed command (header plus, for storage
// verbs, its data block) against cache and returns the line-based reply.
// append/prepend have no dedicated storage-contract primitive (spec.md §6
// names them only in passing); Dispatch calls Cache.Append/Prepend, which
// compose them from the store's Get+Set inside one combined operation — no
// new storage primitive.
func Dispatch(cache latchkv.Cache, h Header, data []byte) Reply {
	switch h.Verb {
	case VerbGet:
		v, ok := cache.Get(h.Key)
		if !ok {
			return textReply("END", false)
		}
		body := "VALUE " + h.Key + " " + strconv.Itoa(int(h.Flags)) + " " + strconv.Itoa(len(v)) + crlf +
			string(v) + crlf + "END"
		return textReply(body, false)

	case VerbSet:
		if cache.Set(h.Key, data) {
			return textReply("STORED", h.NoReply)
		}
		return textReply("NOT_STORED", h.NoReply)

	case VerbAdd:
		if cache.Add(h.Key, data) {
			return textReply("STORED", h.NoReply)
		}
		return textReply("NOT_STORED", h.NoReply)

	case VerbReplace:
		if cache.Replace(h.Key, data) {
			return textReply("STORED", h.NoReply)
		}
		return textReply("NOT_STORED", h.NoReply)

	case VerbAppend:
		if cache.Append(h.Key, data) {
			return textReply("STORED", h.NoReply)
		}
		return textReply("NOT_STORED", h.NoReply)

	case VerbPrepend:
		if cache.Prepend(h.Key, data) {
			return textReply("STORED", h.NoReply)
		}
		return textReply("NOT_STORED", h.NoReply)

	case VerbDelete:
		if cache.Delete(h.Key) {
			return textReply("DELETED", h.NoReply)
		}
		return textReply("NOT_FOUND", h.NoReply)

	default:
		return textReply("ERROR", false)
	}
}

// ErrorReply renders the protocol-level "ERROR" line used for malformed or
// unrecognized commands (ParseHeader returning ErrUnknownCommand or
// ErrMalformed). It is never suppressed: noreply is a property of a
// recognized command, and a line that failed to parse as one carries no
// noreply flag to honor.
func ErrorReply() Reply { return textReply("ERROR", false) }
