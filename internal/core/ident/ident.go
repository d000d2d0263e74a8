// Package ident holds the identifiers shared by every participant in a
// session. They travel on the wire, so their widths are fixed.
package ident

import "strconv"

// NetID is the session-wide identity of a combat entity. Allocated by the
// coordinator, never reused within a session. Zero means "no entity".
type NetID int32

func (id NetID) IsZero() bool { return id == 0 }

func (id NetID) String() string { return "#" + strconv.FormatInt(int64(id), 10) }

// ParticipantID identifies one connected process. Assigned by the relay on
// join. Zero means "nobody" (and, as a destination, "everybody").
type ParticipantID uint64

func (p ParticipantID) IsZero() bool { return p == 0 }

func (p ParticipantID) String() string { return "p" + strconv.FormatUint(uint64(p), 10) }
