package view

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for index digests. The version suffix allows the field
// layout to change without colliding with old digests.
const (
	DomainIndex         = "chessdb/index/v1"
	DomainIndexNoClocks = "chessdb/index-noclock/v1"
)

// DigestOption configures Digest.
type DigestOption func(*digestConfig)

type digestConfig struct {
	timestamps bool
}

// WithoutTimestamps excludes LastUpdated, so digests of two replays of the
// same log are equal.
func WithoutTimestamps() DigestOption {
	return func(c *digestConfig) {
		c.timestamps = false
	}
}

// Digest returns a content hash of idx that does not depend on map order.
//
// Format: SHA256(domain + 0x00 + records), records sorted by game id, each
// field length-prefixed and NFC normalized.
func Digest(idx Index, opts ...DigestOption) string {
	cfg := digestConfig{timestamps: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	domain := DomainIndex
	if !cfg.timestamps {
		domain = DomainIndexNoClocks
	}

	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})

	for _, id := range idx.SortedIDs() {
		rec := idx[id]
		writeField(h, string(id))
		writeField(h, string(rec.Inviter))
		writeField(h, string(rec.Invitee))
		writeField(h, rec.InviterColor)
		writeField(h, string(rec.Phase))
		writeField(h, rec.Terminal)
		writeField(h, string(rec.Winner))
		if cfg.timestamps {
			writeField(h, strconv.FormatInt(unixNano(rec), 10))
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	s = norm.NFC.String(s)
	var n [binary.MaxVarintLen64]byte
	h.Write(n[:binary.PutUvarint(n[:], uint64(len(s)))])
	h.Write([]byte(s))
}

func unixNano(rec GameRecord) int64 {
	if rec.LastUpdated.IsZero() {
		return 0
	}
	return rec.LastUpdated.UnixNano()
}
