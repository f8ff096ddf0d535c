// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package bittorrent implements the common data types shared by every
// transport and storage layer of the tracker: info-hashes, peer ids,
// peers, and swarm entries.
package bittorrent

import (
	"encoding/hex"
	"fmt"
	"net"
)

// InfoHashLen is the fixed length of a BitTorrent info-hash.
const InfoHashLen = 20

// PeerIDLen is the fixed length of a BitTorrent peer id.
const PeerIDLen = 20

// InfoHash identifies a torrent. Equality and ordering are lexicographic
// over the raw bytes.
type InfoHash [InfoHashLen]byte

// NewInfoHash copies b into an InfoHash. It returns ErrInvalidInfoHash if
// b is not exactly InfoHashLen bytes.
func NewInfoHash(b []byte) (InfoHash, error) {
	var ih InfoHash
	if len(b) != InfoHashLen {
		return ih, ErrInvalidInfoHash
	}
	copy(ih[:], b)
	return ih, nil
}

// String renders the info-hash as lowercase hex.
func (ih InfoHash) String() string {
	return hex.EncodeToString(ih[:])
}

// InfoHashFromHex parses the hex encoding produced by InfoHash.String.
func InfoHashFromHex(s string) (InfoHash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return InfoHash{}, ErrInvalidInfoHash
	}
	return NewInfoHash(b)
}

// Less reports whether ih sorts before other, lexicographically over the
// raw bytes.
func (ih InfoHash) Less(other InfoHash) bool {
	for i := range ih {
		if ih[i] != other[i] {
			return ih[i] < other[i]
		}
	}
	return false
}

// PeerID is the opaque 20-byte identifier a client chooses for itself.
type PeerID [PeerIDLen]byte

// NewPeerID copies b into a PeerID. It returns ErrInvalidPeerID if b is
// not exactly PeerIDLen bytes.
func NewPeerID(b []byte) (PeerID, error) {
	var id PeerID
	if len(b) != PeerIDLen {
		return id, ErrInvalidPeerID
	}
	copy(id[:], b)
	return id, nil
}

func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// AddressFamily distinguishes the two socket families the wire protocols
// encode differently.
type AddressFamily uint8

const (
	IPv4 AddressFamily = iota
	IPv6
)

// Socket is the (IP, port) pair the tracker advertises to other peers.
type Socket struct {
	IP   net.IP
	Port uint16
}

// Family reports whether the socket is IPv4 or IPv6.
func (s Socket) Family() AddressFamily {
	if s.IP.To4() != nil {
		return IPv4
	}
	return IPv6
}

// Equal reports whether two sockets refer to the same (IP, port).
func (s Socket) Equal(other Socket) bool {
	return s.Port == other.Port && s.IP.Equal(other.IP)
}

func (s Socket) String() string {
	return fmt.Sprintf("%s:%d", s.IP.String(), s.Port)
}

// Event is the announce event a peer reports.
type Event uint8

const (
	EventNone Event = iota
	EventStarted
	EventCompleted
	EventStopped
)

// ParseEvent maps the HTTP/UDP event token/code to an Event.
func ParseEvent(s string) (Event, error) {
	switch s {
	case "", "none":
		return EventNone, nil
	case "started":
		return EventStarted, nil
	case "completed":
		return EventCompleted, nil
	case "stopped":
		return EventStopped, nil
	default:
		return EventNone, ErrMalformedRequest
	}
}

func (e Event) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventStopped:
		return "stopped"
	default:
		return "none"
	}
}
